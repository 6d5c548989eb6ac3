package cdev

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tinyrange/chardev/internal/caps"
)

// Registry holds the devices of one subsystem instance, keyed by name
// with minors kept unique, and drives their lifecycle as a group.
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log, devices: make(map[string]*Device)}
}

// Register adds a device, rejecting name and minor collisions.
func (r *Registry) Register(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.Name()]; ok {
		return fmt.Errorf("device %s already registered", d.Name())
	}
	for _, other := range r.devices {
		if other.Minor() == d.Minor() {
			return fmt.Errorf("device %s: minor %d already taken by %s",
				d.Name(), d.Minor(), other.Name())
		}
	}
	r.devices[d.Name()] = d
	return nil
}

// Device looks up a registered device.
func (r *Registry) Device(name string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[name]
	return d, ok
}

// Devices returns every registered device sorted by name.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Open returns a handle on the named device, or ErrNoDevice.
func (r *Registry) Open(name string) (*Handle, error) {
	d, ok := r.Device(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, name)
	}
	return &Handle{dev: d}, nil
}

// StartAll starts every device in name order, stopping the ones already
// started if one fails.
func (r *Registry) StartAll() error {
	started := []*Device{}
	for _, d := range r.Devices() {
		if err := d.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if serr := started[i].Stop(); serr != nil {
					r.log.Warn("stop during failed start", "device", started[i].Name(), "error", serr)
				}
			}
			return err
		}
		started = append(started, d)
	}
	return nil
}

// StopAll stops every device in name order, returning the first error
// after trying them all.
func (r *Registry) StopAll() error {
	var first error
	for _, d := range r.Devices() {
		if err := d.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CloseAll closes every device, releasing all blocked callers.
func (r *Registry) CloseAll() error {
	var first error
	for _, d := range r.Devices() {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Handle is one open descriptor on a device. Handles are independent:
// closing one does not disturb the device or other handles.
type Handle struct {
	dev *Device

	mu     sync.Mutex
	closed bool
}

// Device returns the device behind the handle.
func (h *Handle) Device() *Device {
	return h.dev
}

func (h *Handle) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

// Read drains up to max bytes from the device.
func (h *Handle) Read(ctx context.Context, max int, nonBlocking bool) ([]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.dev.Read(ctx, max, nonBlocking)
}

// Write sends p through the device.
func (h *Handle) Write(ctx context.Context, p []byte, nonBlocking bool) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.dev.Write(ctx, p, nonBlocking)
}

// Ioctl runs one control command with the caller's capabilities.
func (h *Handle) Ioctl(caller caps.Set, req *Request) (int32, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.dev.Ioctl(caller, req)
}

// Close invalidates the handle. A second Close returns ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	return nil
}
