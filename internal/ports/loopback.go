package ports

import (
	"fmt"
	"sync"

	"github.com/tinyrange/chardev/internal/event"
)

// Loopback feeds every written byte straight back in as event data, the
// software equivalent of wiring a port's output pin to its interrupt pin.
// It is the default demo backend: a write becomes readable on the same
// device.
type Loopback struct {
	mu  sync.Mutex
	src *event.Source
}

// NewLoopback creates a stopped loopback backend.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Name() string {
	return "loopback"
}

func (l *Loopback) Start(src *event.Source) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.src != nil {
		return fmt.Errorf("loopback: already started")
	}
	l.src = src
	return nil
}

// Write accepts all bytes, like a port register. Whether the echoed event
// made it into the channel shows up in the source's stats, not here.
func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	src := l.src
	l.mu.Unlock()
	if src != nil {
		src.Deliver(p)
	}
	return len(p), nil
}

func (l *Loopback) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.src = nil
	return nil
}

var _ Backend = (*Loopback)(nil)
