// Package ports supplies the hardware-facing side of a device: the
// opaque backend written bytes are mirrored to and event data originates
// from. Backends never block device writes and surface incoming data only
// through an event source.
package ports

import "github.com/tinyrange/chardev/internal/event"

// Backend is one attachment point behind a device.
//
// Write mirrors device output to the backend and reports how many bytes
// the backend took. Backends that produce input push it into the event
// source handed to Start; the device routes it into its channel.
type Backend interface {
	Name() string
	Start(src *event.Source) error
	Write(p []byte) (int, error)
	Stop() error
}

// Simple adapts plain functions to the Backend interface. Nil functions
// behave as no-ops, which keeps test backends small.
type Simple struct {
	BackendName string
	StartFunc   func(src *event.Source) error
	WriteFunc   func(p []byte) (int, error)
	StopFunc    func() error
}

func (s *Simple) Name() string {
	if s.BackendName == "" {
		return "simple"
	}
	return s.BackendName
}

func (s *Simple) Start(src *event.Source) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(src)
}

func (s *Simple) Write(p []byte) (int, error) {
	if s.WriteFunc == nil {
		return len(p), nil
	}
	return s.WriteFunc(p)
}

func (s *Simple) Stop() error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc()
}

var _ Backend = (*Simple)(nil)
