package cdev

import "sync"

// Defaults for the transfer geometry fields.
const (
	DefaultQuantum  int32 = 4000
	DefaultQsetSize int32 = 1000
)

// field selects which configuration value a command operates on.
type field int

const (
	fieldQuantum field = iota
	fieldQset
)

func (f field) String() string {
	if f == fieldQuantum {
		return "quantum"
	}
	return "qset"
}

func (f field) defaultValue() int32 {
	if f == fieldQuantum {
		return DefaultQuantum
	}
	return DefaultQsetSize
}

// Config holds a device's tunable transfer geometry. It has its own
// mutex, separate from the channel lock, so command dispatch never
// contends with data-path suspension. Mutation goes through the
// Dispatcher; the setters here exist for construction-time overrides.
type Config struct {
	mu       sync.Mutex
	quantum  int32
	qsetSize int32
}

// NewConfig returns a Config carrying the default geometry.
func NewConfig() *Config {
	return &Config{quantum: DefaultQuantum, qsetSize: DefaultQsetSize}
}

// Quantum returns the current quantum value.
func (c *Config) Quantum() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quantum
}

// QsetSize returns the current qset size.
func (c *Config) QsetSize() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.qsetSize
}

// Snapshot returns both values read under one lock hold.
func (c *Config) Snapshot() (quantum, qsetSize int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quantum, c.qsetSize
}

// SetQuantum overrides the quantum, for device construction.
func (c *Config) SetQuantum(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantum = v
}

// SetQsetSize overrides the qset size, for device construction.
func (c *Config) SetQsetSize(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qsetSize = v
}

// Reset restores both fields to their defaults.
func (c *Config) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantum = DefaultQuantum
	c.qsetSize = DefaultQsetSize
}

// fieldLocked returns the storage for f. Callers hold c.mu.
func (c *Config) fieldLocked(f field) *int32 {
	if f == fieldQuantum {
		return &c.quantum
	}
	return &c.qsetSize
}
