package cdev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/chardev/internal/caps"
	"github.com/tinyrange/chardev/internal/event"
	"github.com/tinyrange/chardev/internal/ports"
)

// DefaultCapacity is the ring size a device gets when the caller does
// not pick one. It matches the page-sized buffer of the original
// hardware driver.
const DefaultCapacity = 4096

// Options configures a device. The zero value is usable: a discard
// backend, the default ring capacity, inline event delivery, and the
// strict capability gate.
type Options struct {
	// Minor carries the port index, mode, and event-driven flag.
	Minor Minor

	// Capacity is the ring buffer size in bytes. Zero means
	// DefaultCapacity.
	Capacity int

	// Backend is the port the device talks to. Nil means discard.
	Backend ports.Backend

	// Deferral picks how backend events reach the channel.
	Deferral event.Deferral

	// Gate authorizes privileged commands. Nil means StrictGate.
	Gate caps.Gate

	// Quantum and QsetSize override the tunable defaults when nonzero.
	Quantum  int32
	QsetSize int32

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Device ties the pieces of one character device together: the buffered
// channel, the tunable config with its command dispatcher, the backend
// port, and the event source feeding the channel.
//
// How a write travels depends on the minor. A direct device buffers the
// bytes itself and mirrors them to the backend, so its own writes come
// back on read. An event-driven device hands writes straight to the
// backend and only backend events fill the channel.
type Device struct {
	name string
	opts Options
	log  *slog.Logger

	channel    *Channel
	config     *Config
	dispatcher *Dispatcher
	backend    ports.Backend
	source     *event.Source

	mu      sync.Mutex
	started bool
}

// NewDevice builds a stopped device. Call Start to attach the backend.
func NewDevice(name string, opts Options) (*Device, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: device needs a name", ErrInvalidArgument)
	}
	if err := opts.Minor.Validate(); err != nil {
		return nil, fmt.Errorf("device %s: %w", name, err)
	}
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Backend == nil {
		opts.Backend = ports.NewNull()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	channel, err := NewChannel(name, opts.Capacity, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", name, err)
	}

	cfg := NewConfig()
	if opts.Quantum != 0 {
		cfg.SetQuantum(opts.Quantum)
	}
	if opts.QsetSize != 0 {
		cfg.SetQsetSize(opts.QsetSize)
	}

	d := &Device{
		name:       name,
		opts:       opts,
		log:        opts.Logger,
		channel:    channel,
		config:     cfg,
		dispatcher: NewDispatcher(cfg, opts.Gate, opts.Logger),
		backend:    opts.Backend,
	}
	d.source = event.NewSource(channel, opts.Deferral, opts.Logger)
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Minor returns the device minor.
func (d *Device) Minor() Minor { return d.opts.Minor }

// Channel exposes the buffered data path.
func (d *Device) Channel() *Channel { return d.channel }

// Config exposes the tunables the command dispatcher mutates.
func (d *Device) Config() *Config { return d.config }

// Backend returns the attached port.
func (d *Device) Backend() ports.Backend { return d.backend }

// Source returns the event source feeding the channel.
func (d *Device) Source() *event.Source { return d.source }

// Start brings up event delivery and the backend.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("device %s already started", d.name)
	}
	if err := d.source.Start(); err != nil {
		return fmt.Errorf("device %s: %w", d.name, err)
	}
	if err := d.backend.Start(d.source); err != nil {
		_ = d.source.Stop()
		return fmt.Errorf("device %s: backend %s: %w", d.name, d.backend.Name(), err)
	}
	d.started = true
	d.log.Debug("device started", "device", d.name, "minor", d.opts.Minor.String(), "backend", d.backend.Name())
	return nil
}

// Stop detaches the backend and halts event delivery. Buffered data
// stays readable.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return fmt.Errorf("device %s not started", d.name)
	}
	d.started = false
	if err := d.backend.Stop(); err != nil {
		return fmt.Errorf("device %s: backend %s: %w", d.name, d.backend.Name(), err)
	}
	return d.source.Stop()
}

// Reset drops buffered data and restores the tunable defaults. The
// backend stays attached.
func (d *Device) Reset() error {
	d.channel.Flush()
	d.config.Reset()
	d.log.Debug("device reset", "device", d.name)
	return nil
}

// Read drains up to max buffered bytes. See Channel.Read for the
// blocking contract.
func (d *Device) Read(ctx context.Context, max int, nonBlocking bool) ([]byte, error) {
	return d.channel.Read(ctx, max, nonBlocking)
}

// Write sends p through the device.
//
// On a direct device the bytes are buffered for readers, then mirrored
// to the backend; the returned count is what the channel took, and
// nonBlocking governs whether a full buffer suspends the caller. On an
// event-driven device the bytes go to the backend alone and the channel
// fills only from events; that path is paced by the backend itself, so
// nonBlocking has no effect and cancellation is checked before the
// handoff, not during it.
func (d *Device) Write(ctx context.Context, p []byte, nonBlocking bool) (int, error) {
	if d.opts.Minor.EventDriven() {
		if len(p) == 0 {
			return 0, fmt.Errorf("%w: empty write", ErrInvalidArgument)
		}
		if ctx.Err() != nil {
			return 0, ErrInterrupted
		}
		n, err := d.backend.Write(p)
		if err != nil {
			return n, fmt.Errorf("device %s: backend %s: %w", d.name, d.backend.Name(), err)
		}
		return n, nil
	}

	n, err := d.channel.Write(ctx, p, nonBlocking)
	if err != nil {
		return 0, err
	}
	if _, werr := d.backend.Write(p[:n]); werr != nil {
		d.log.Warn("backend write failed", "device", d.name, "backend", d.backend.Name(), "error", werr)
	}
	return n, nil
}

// Ioctl runs one control command against the device tunables.
func (d *Device) Ioctl(caller caps.Set, req *Request) (int32, error) {
	return d.dispatcher.Dispatch(caller, req)
}

// Close stops the device if needed and closes the channel, releasing
// every blocked reader and writer.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.started {
		d.started = false
		if err := d.backend.Stop(); err != nil {
			d.log.Warn("backend stop failed", "device", d.name, "error", err)
		}
		if err := d.source.Stop(); err != nil {
			d.log.Warn("event source stop failed", "device", d.name, "error", err)
		}
	}
	d.mu.Unlock()
	return d.channel.Close()
}

var (
	_ event.Sink = (*Channel)(nil)
)
