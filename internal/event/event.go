// Package event carries data from a device's interrupt-like producer to
// its channel sink. A Source decouples where data is noticed from where
// the append-and-wake runs, mirroring the inline handler, per-event task,
// and serialized work-queue deferral styles of interrupt handling.
package event

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sink accepts event data. The channel side implements this by appending
// to its ring buffer and waking readers under its own lock; it returns
// the number of bytes it accepted.
type Sink interface {
	OnEventData(p []byte) int
}

// SinkFromFunc adapts a plain function to the Sink interface.
func SinkFromFunc(fn func(p []byte) int) Sink {
	return sinkFunc(fn)
}

type sinkFunc func(p []byte) int

func (f sinkFunc) OnEventData(p []byte) int {
	return f(p)
}

// Deferral selects the context the sink runs in when data is delivered.
type Deferral int

const (
	// Inline runs the sink on the delivering goroutine.
	Inline Deferral = iota
	// Task spawns a goroutine per delivery.
	Task
	// Queue hands deliveries to one worker goroutine in order.
	Queue
)

func (d Deferral) String() string {
	switch d {
	case Inline:
		return "inline"
	case Task:
		return "task"
	case Queue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseDeferral maps a configuration string to a Deferral.
func ParseDeferral(s string) (Deferral, error) {
	switch strings.ToLower(s) {
	case "", "inline":
		return Inline, nil
	case "task":
		return Task, nil
	case "queue":
		return Queue, nil
	default:
		return Inline, fmt.Errorf("event: unknown deferral %q", s)
	}
}

// Stats counts delivery traffic through a Source.
type Stats struct {
	Events    uint64
	Delivered uint64
	Dropped   uint64
}

// queueDepth bounds how many pending deliveries a Queue-mode source holds
// before it starts dropping instead of blocking the producer.
const queueDepth = 64

// Source delivers producer data to a Sink through a Deferral mode.
// Deliver never blocks the producer: data that cannot be handed off is
// dropped and counted.
type Source struct {
	sink Sink
	mode Deferral
	log  *slog.Logger

	mu      sync.Mutex
	running bool
	stats   Stats
	jobs    chan []byte

	wg sync.WaitGroup
}

// NewSource creates a stopped Source delivering to sink. A nil logger
// falls back to slog.Default.
func NewSource(sink Sink, mode Deferral, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{sink: sink, mode: mode, log: log}
}

// Mode returns the source's deferral mode.
func (s *Source) Mode() Deferral {
	return s.mode
}

// Start makes the source accept deliveries. In Queue mode it launches the
// worker goroutine.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("event: source already started")
	}
	if s.mode == Queue {
		s.jobs = make(chan []byte, queueDepth)
		s.wg.Add(1)
		go s.runQueue(s.jobs)
	}
	s.running = true
	return nil
}

// Stop waits for in-flight deliveries and makes further Deliver calls
// drop their data.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("event: source not started")
	}
	s.running = false
	jobs := s.jobs
	s.jobs = nil
	s.mu.Unlock()

	if jobs != nil {
		close(jobs)
	}
	s.wg.Wait()
	return nil
}

// Deliver hands p to the sink through the configured deferral mode and
// returns the number of bytes handed off. Asynchronous modes copy p, so
// the caller may reuse its buffer immediately.
func (s *Source) Deliver(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	s.mu.Lock()
	s.stats.Events++
	if !s.running {
		s.stats.Dropped += uint64(len(p))
		s.mu.Unlock()
		s.log.Debug("event source stopped, dropping", "bytes", len(p))
		return 0
	}

	switch s.mode {
	case Task:
		data := append([]byte(nil), p...)
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.handle(data)
		}()
	case Queue:
		data := append([]byte(nil), p...)
		select {
		case s.jobs <- data:
			s.mu.Unlock()
		default:
			s.stats.Dropped += uint64(len(p))
			s.mu.Unlock()
			s.log.Warn("event queue full, dropping", "bytes", len(p))
			return 0
		}
	default:
		s.wg.Add(1)
		s.mu.Unlock()
		s.handle(p)
		s.wg.Done()
	}
	return len(p)
}

// Stats returns a snapshot of the delivery counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Source) runQueue(jobs <-chan []byte) {
	defer s.wg.Done()
	for data := range jobs {
		s.handle(data)
	}
}

func (s *Source) handle(p []byte) {
	n := s.sink.OnEventData(p)
	s.mu.Lock()
	s.stats.Delivered += uint64(n)
	if n < len(p) {
		s.stats.Dropped += uint64(len(p) - n)
	}
	s.mu.Unlock()
	if n < len(p) {
		s.log.Warn("sink overrun", "accepted", n, "offered", len(p))
	}
}

var _ Sink = sinkFunc(nil)
