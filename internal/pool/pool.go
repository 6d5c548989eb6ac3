// Package pool provides named byte pools carved into labeled partitions.
// Memory-backed devices borrow their regions from a partition instead of
// owning raw allocations, and tooling can list what was reserved where.
package pool

import (
	"fmt"
	"sort"
	"sync"
)

// Partition is a reserved, non-overlapping region of a Pool.
type Partition struct {
	label  string
	start  int
	size   int
	export bool
	data   []byte
}

// Label returns the partition's unique label within its pool.
func (p *Partition) Label() string {
	return p.label
}

// Start returns the partition's offset within the pool.
func (p *Partition) Start() int {
	return p.start
}

// Size returns the partition's size in bytes.
func (p *Partition) Size() int {
	return p.size
}

// Exported reports whether devices outside the pool's owner may bind to
// this partition.
func (p *Partition) Exported() bool {
	return p.export
}

// Bytes returns the partition's backing region. Writes through the slice
// land in the pool.
func (p *Partition) Bytes() []byte {
	return p.data
}

// Pool is a fixed-size byte arena with labeled reservations.
type Pool struct {
	name string

	mu    sync.Mutex
	data  []byte
	parts []*Partition // sorted by start
}

// New creates an empty pool of the given size.
func New(name string, size int) (*Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("pool: name must not be empty")
	}
	if size <= 0 {
		return nil, fmt.Errorf("pool %q: size must be positive, got %d", name, size)
	}
	return &Pool{name: name, data: make([]byte, size)}, nil
}

// Name returns the pool's name.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the pool's total size in bytes.
func (p *Pool) Size() int {
	return len(p.data)
}

// Available returns the number of unreserved bytes.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := 0
	for _, part := range p.parts {
		used += part.size
	}
	return len(p.data) - used
}

// Reserve carves a partition out of the pool. A negative start requests
// first-fit placement; an explicit start must not overlap an existing
// partition. Labels are unique per pool.
func (p *Pool) Reserve(label string, start, size int, export bool) (*Partition, error) {
	if label == "" {
		return nil, fmt.Errorf("pool %q: partition label must not be empty", p.name)
	}
	if size <= 0 {
		return nil, fmt.Errorf("pool %q: partition %q size must be positive, got %d", p.name, label, size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, part := range p.parts {
		if part.label == label {
			return nil, fmt.Errorf("pool %q: partition %q already reserved", p.name, label)
		}
	}

	if start < 0 {
		var err error
		start, err = p.firstFitLocked(size)
		if err != nil {
			return nil, fmt.Errorf("pool %q: partition %q: %w", p.name, label, err)
		}
	} else {
		if start+size > len(p.data) {
			return nil, fmt.Errorf("pool %q: partition %q [%d, %d) exceeds pool size %d",
				p.name, label, start, start+size, len(p.data))
		}
		for _, part := range p.parts {
			if start < part.start+part.size && part.start < start+size {
				return nil, fmt.Errorf("pool %q: partition %q [%d, %d) overlaps %q [%d, %d)",
					p.name, label, start, start+size, part.label, part.start, part.start+part.size)
			}
		}
	}

	part := &Partition{
		label:  label,
		start:  start,
		size:   size,
		export: export,
		data:   p.data[start : start+size : start+size],
	}
	p.parts = append(p.parts, part)
	sort.Slice(p.parts, func(i, j int) bool { return p.parts[i].start < p.parts[j].start })
	return part, nil
}

// firstFitLocked finds the lowest gap that holds size bytes.
func (p *Pool) firstFitLocked(size int) (int, error) {
	offset := 0
	for _, part := range p.parts {
		if part.start-offset >= size {
			return offset, nil
		}
		offset = part.start + part.size
	}
	if len(p.data)-offset >= size {
		return offset, nil
	}
	return 0, fmt.Errorf("no gap of %d bytes free", size)
}

// Partition looks up a reservation by label.
func (p *Pool) Partition(label string) (*Partition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range p.parts {
		if part.label == label {
			return part, true
		}
	}
	return nil, false
}

// Partitions returns the reservations ordered by start offset.
func (p *Pool) Partitions() []*Partition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Partition(nil), p.parts...)
}

// Manager is a registry of named pools.
type Manager struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// Add registers a pool. Pool names are unique.
func (m *Manager) Add(p *Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[p.Name()]; ok {
		return fmt.Errorf("pool %q already registered", p.Name())
	}
	m.pools[p.Name()] = p
	return nil
}

// Get looks up a pool by name.
func (m *Manager) Get(name string) (*Pool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[name]
	return p, ok
}

// Pools returns the registered pools sorted by name.
func (m *Manager) Pools() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Pool, 0, len(names))
	for _, name := range names {
		out = append(out, m.pools[name])
	}
	return out
}
