// Package chardev implements a character-device style I/O subsystem:
// ring-buffered channels with blocking reads and writes, wait queues
// with kernel-like wakeup semantics, capability-gated control commands,
// and pluggable port backends feeding devices through event sources.
package chardev

import (
	"log/slog"

	"github.com/tinyrange/chardev/internal/caps"
	"github.com/tinyrange/chardev/internal/cdev"
	"github.com/tinyrange/chardev/internal/config"
	"github.com/tinyrange/chardev/internal/event"
	"github.com/tinyrange/chardev/internal/ioctl"
	"github.com/tinyrange/chardev/internal/pool"
	"github.com/tinyrange/chardev/internal/ports"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from the internal packages
// -----------------------------------------------------------------------------

// Device is one character device: a buffered channel, its tunables and
// command dispatcher, a port backend, and the event source between them.
type Device = cdev.Device

// DeviceOptions configures a Device. Most callers use NewDevice with
// With* options instead of filling this in directly.
type DeviceOptions = cdev.Options

// Channel is the buffered data path of a device.
type Channel = cdev.Channel

// ChannelStats counts traffic through a channel.
type ChannelStats = cdev.ChannelStats

// Tunables holds the quantum and quantum-set size the control commands
// operate on.
type Tunables = cdev.Config

// Dispatcher validates and executes control commands.
type Dispatcher = cdev.Dispatcher

// Request is one decoded control command.
type Request = cdev.Request

// CommandInfo describes one recognized control command.
type CommandInfo = cdev.CommandInfo

// Registry holds named devices and drives their lifecycle as a group.
type Registry = cdev.Registry

// Handle is one open descriptor on a device.
type Handle = cdev.Handle

// Minor packs a device's port index, access mode, and event-driven flag.
type Minor = cdev.Minor

// Mode names which backend class a device attaches to.
type Mode = cdev.Mode

// Code is an encoded control command number.
type Code = ioctl.Code

// Capability is one privilege a caller may hold.
type Capability = caps.Capability

// CapabilitySet is the set of capabilities attached to a caller.
type CapabilitySet = caps.Set

// Gate decides whether a caller's capabilities satisfy a requirement.
type Gate = caps.Gate

// Backend is the hardware-facing attachment behind a device.
type Backend = ports.Backend

// EventSource carries backend data into a device's channel.
type EventSource = event.Source

// Deferral selects how event data reaches the channel.
type Deferral = event.Deferral

// Pool is a fixed byte region partitions are carved from.
type Pool = pool.Pool

// Partition is one reserved region of a pool.
type Partition = pool.Partition

// PoolManager holds named pools.
type PoolManager = pool.Manager

// Table is the on-disk device table.
type Table = config.Config

// Access mode constants.
const (
	ModeDefault = cdev.ModeDefault
	ModePause   = cdev.ModePause
	ModeString  = cdev.ModeString
	ModeMemory  = cdev.ModeMemory
)

// Event deferral constants.
const (
	Inline = event.Inline
	Task   = event.Task
	Queue  = event.Queue
)

// Capability constants.
const (
	SysAdmin = caps.SysAdmin
	SysRawIO = caps.SysRawIO
)

// Tunable defaults.
const (
	DefaultQuantum  = cdev.DefaultQuantum
	DefaultQsetSize = cdev.DefaultQsetSize
	DefaultCapacity = cdev.DefaultCapacity
)

// The recognized control commands.
var (
	CmdResetQuantum    = cdev.CmdResetQuantum
	CmdSetQuantumPtr   = cdev.CmdSetQuantumPtr
	CmdSetQuantumVal   = cdev.CmdSetQuantumVal
	CmdGetQuantumPtr   = cdev.CmdGetQuantumPtr
	CmdGetQuantumRet   = cdev.CmdGetQuantumRet
	CmdExchangeQuantum = cdev.CmdExchangeQuantum
	CmdShiftQuantumVal = cdev.CmdShiftQuantumVal

	CmdResetQset    = cdev.CmdResetQset
	CmdSetQsetPtr   = cdev.CmdSetQsetPtr
	CmdSetQsetVal   = cdev.CmdSetQsetVal
	CmdGetQsetPtr   = cdev.CmdGetQsetPtr
	CmdGetQsetRet   = cdev.CmdGetQsetRet
	CmdExchangeQset = cdev.CmdExchangeQset
	CmdShiftQsetVal = cdev.CmdShiftQsetVal
)

// Common sentinel errors. Use errors.Is to classify a failure; Errno
// maps each onto the POSIX code a kernel driver would return.
var (
	ErrWouldBlock         = cdev.ErrWouldBlock
	ErrInterrupted        = cdev.ErrInterrupted
	ErrInvalidArgument    = cdev.ErrInvalidArgument
	ErrPermissionDenied   = cdev.ErrPermissionDenied
	ErrUnsupportedCommand = cdev.ErrUnsupportedCommand
	ErrFault              = cdev.ErrFault
	ErrClosed             = cdev.ErrClosed
	ErrNoDevice           = cdev.ErrNoDevice
)

// -----------------------------------------------------------------------------
// Device Options
// -----------------------------------------------------------------------------

// DeviceOption configures NewDevice.
type DeviceOption func(*DeviceOptions)

// WithMinor sets the device minor.
func WithMinor(m Minor) DeviceOption {
	return func(o *DeviceOptions) { o.Minor = m }
}

// WithCapacity sets the ring buffer size in bytes.
func WithCapacity(n int) DeviceOption {
	return func(o *DeviceOptions) { o.Capacity = n }
}

// WithBackend attaches a port backend.
func WithBackend(b Backend) DeviceOption {
	return func(o *DeviceOptions) { o.Backend = b }
}

// WithDeferral picks how backend events reach the channel.
func WithDeferral(d Deferral) DeviceOption {
	return func(o *DeviceOptions) { o.Deferral = d }
}

// WithGate installs the capability gate for privileged commands.
func WithGate(g Gate) DeviceOption {
	return func(o *DeviceOptions) { o.Gate = g }
}

// WithTunables overrides the default quantum and quantum-set size.
func WithTunables(quantum, qsetSize int32) DeviceOption {
	return func(o *DeviceOptions) {
		o.Quantum = quantum
		o.QsetSize = qsetSize
	}
}

// WithLogger routes the device's logging.
func WithLogger(log *slog.Logger) DeviceOption {
	return func(o *DeviceOptions) { o.Logger = log }
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// NewDevice builds a stopped device. Call Start to attach the backend.
func NewDevice(name string, opts ...DeviceOption) (*Device, error) {
	var o DeviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	return cdev.NewDevice(name, o)
}

// NewRegistry creates an empty device registry.
func NewRegistry(log *slog.Logger) *Registry {
	return cdev.NewRegistry(log)
}

// NewChannel creates a standalone buffered channel.
func NewChannel(name string, capacity int, log *slog.Logger) (*Channel, error) {
	return cdev.NewChannel(name, capacity, log)
}

// NewDispatcher creates a command dispatcher over its own tunables.
func NewDispatcher(cfg *Tunables, gate Gate, log *slog.Logger) *Dispatcher {
	return cdev.NewDispatcher(cfg, gate, log)
}

// MakeMinor composes a minor from a port index, mode, and event flag.
func MakeMinor(port int, mode Mode, eventDriven bool) Minor {
	return cdev.MakeMinor(port, mode, eventDriven)
}

// NewCapabilitySet builds a capability set holding the given capabilities.
func NewCapabilitySet(capabilities ...Capability) CapabilitySet {
	return caps.NewSet(capabilities...)
}

// AllCapabilities returns the set holding every capability.
func AllCapabilities() CapabilitySet {
	return caps.Full()
}

// StrictGate returns the gate that grants exactly what the caller holds.
func StrictGate() Gate {
	return caps.StrictGate()
}

// GateFromFunc adapts a plain function to the Gate interface.
func GateFromFunc(fn func(caller CapabilitySet, c Capability) bool) Gate {
	return caps.GateFromFunc(fn)
}

// NewLoopback creates a backend that echoes writes back as events.
func NewLoopback() Backend {
	return ports.NewLoopback()
}

// NewNull creates the discard backend.
func NewNull() Backend {
	return ports.NewNull()
}

// NewMemBackend creates a backend writing circularly into region.
func NewMemBackend(region []byte) (Backend, error) {
	return ports.NewMem(region)
}

// NewPty allocates a pseudo terminal backend and returns the path a
// client can open.
func NewPty() (Backend, string, error) {
	return ports.NewPty()
}

// NewPool creates a named byte pool of the given size.
func NewPool(name string, size int) (*Pool, error) {
	return pool.New(name, size)
}

// Commands lists every recognized control command.
func Commands() []CommandInfo {
	return cdev.Commands()
}

// CommandByName resolves a command's tooling name to its code.
func CommandByName(name string) (Code, bool) {
	return cdev.CommandByName(name)
}

// ParseDeferral maps a configuration string to a Deferral.
func ParseDeferral(s string) (Deferral, error) {
	return event.ParseDeferral(s)
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	return cdev.ParseMode(s)
}

// Errno maps a subsystem error onto the POSIX errno a kernel driver
// would return for the same condition.
func Errno(err error) (int, bool) {
	return cdev.Errno(err)
}

// LoadTable parses a device table.
func LoadTable(data []byte) (Table, error) {
	return config.Load(data)
}

// LoadTableFile reads and parses a device table from path.
func LoadTableFile(path string) (Table, error) {
	return config.LoadFile(path)
}
