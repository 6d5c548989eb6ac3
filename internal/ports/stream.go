package ports

import (
	"fmt"
	"io"
	"sync"

	"github.com/tinyrange/chardev/internal/event"
)

// Stream attaches a device to a host byte stream: writes go out through
// the stream, and a pump goroutine feeds whatever the stream produces
// into the event source.
type Stream struct {
	name string
	rw   io.ReadWriter

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewStream creates a backend over rw. If rw also implements io.Closer it
// is closed on Stop, which is what unblocks a pump stuck in Read.
func NewStream(name string, rw io.ReadWriter) *Stream {
	if name == "" {
		name = "stream"
	}
	return &Stream{name: name, rw: rw}
}

func (s *Stream) Name() string {
	return s.name
}

func (s *Stream) Start(src *event.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%s: already started", s.name)
	}
	s.started = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.pump(src, s.stop)
	return nil
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.rw.Write(p)
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	if closer, ok := s.rw.(io.Closer); ok {
		closer.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Stream) pump(src *event.Source, stop <-chan struct{}) {
	defer s.wg.Done()
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := s.rw.Read(buf)
		if n > 0 {
			src.Deliver(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

var _ Backend = (*Stream)(nil)
