package ports

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tinyrange/chardev/internal/event"
)

// collectSink records everything delivered through a source.
type collectSink struct {
	mu   sync.Mutex
	data []byte
}

func (c *collectSink) OnEventData(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
	return len(p)
}

func (c *collectSink) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...)
}

func startedSource(t *testing.T, sink event.Sink) *event.Source {
	t.Helper()
	src := event.NewSource(sink, event.Inline, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("source Start: %v", err)
	}
	t.Cleanup(func() { src.Stop() })
	return src
}

func TestLoopbackEchoesWrites(t *testing.T) {
	sink := &collectSink{}
	src := startedSource(t, sink)

	lb := NewLoopback()
	if err := lb.Start(src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer lb.Stop()

	n, err := lb.Write([]byte("ping"))
	if err != nil || n != 4 {
		t.Fatalf("Write = (%d, %v), expected (4, nil)", n, err)
	}
	if got := sink.bytes(); !bytes.Equal(got, []byte("ping")) {
		t.Fatalf("loopback delivered %q, expected %q", got, "ping")
	}
}

func TestLoopbackBeforeStartDiscards(t *testing.T) {
	lb := NewLoopback()
	n, err := lb.Write([]byte("lost"))
	if err != nil || n != 4 {
		t.Fatalf("Write = (%d, %v), expected (4, nil)", n, err)
	}
	if err := lb.Start(startedSource(t, &collectSink{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := lb.Start(nil); err == nil {
		t.Fatalf("second Start expected error")
	}
}

func TestMemWrapsRegion(t *testing.T) {
	region := make([]byte, 8)
	m, err := NewMem(region)
	if err != nil {
		t.Fatalf("NewMem: %v", err)
	}

	if n, err := m.Write([]byte("abcdef")); n != 6 || err != nil {
		t.Fatalf("Write = (%d, %v), expected (6, nil)", n, err)
	}
	if n, err := m.Write([]byte("1234")); n != 4 || err != nil {
		t.Fatalf("Write = (%d, %v), expected (4, nil)", n, err)
	}

	// Ten bytes through an eight byte region: the tail wrapped onto the
	// front.
	if !bytes.Equal(region, []byte("34cdef12")) {
		t.Fatalf("region = %q, expected %q", region, "34cdef12")
	}
	if got := m.Offset(); got != 2 {
		t.Fatalf("Offset = %d, expected 2", got)
	}
	if got := m.Total(); got != 10 {
		t.Fatalf("Total = %d, expected 10", got)
	}
}

func TestMemRejectsEmptyRegion(t *testing.T) {
	if _, err := NewMem(nil); err == nil {
		t.Fatalf("NewMem(nil) expected error")
	}
}

func TestNullDiscards(t *testing.T) {
	n := NewNull()
	if err := n.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cnt, err := n.Write([]byte("whatever")); cnt != 8 || err != nil {
		t.Fatalf("Write = (%d, %v), expected (8, nil)", cnt, err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// scriptedRW feeds queued chunks to Read, then blocks until closed.
type scriptedRW struct {
	mu     sync.Mutex
	chunks [][]byte
	closed chan struct{}
	wrote  []byte
}

func newScriptedRW(chunks ...[]byte) *scriptedRW {
	return &scriptedRW{chunks: chunks, closed: make(chan struct{})}
}

func (s *scriptedRW) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return copy(p, chunk), nil
	}
	s.mu.Unlock()
	<-s.closed
	return 0, io.EOF
}

func (s *scriptedRW) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrote = append(s.wrote, p...)
	return len(p), nil
}

func (s *scriptedRW) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func TestStreamPumpsReads(t *testing.T) {
	sink := &collectSink{}
	src := startedSource(t, sink)

	rw := newScriptedRW([]byte("hello "), []byte("world"))
	st := NewStream("test", rw)
	if err := st.Start(src); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !bytes.Equal(sink.bytes(), []byte("hello world")) {
		if time.Now().After(deadline) {
			t.Fatalf("pump delivered %q, expected %q", sink.bytes(), "hello world")
		}
		time.Sleep(time.Millisecond)
	}

	if err := st.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStreamWritesThrough(t *testing.T) {
	rw := newScriptedRW()
	st := NewStream("test", rw)
	if n, err := st.Write([]byte("out")); n != 3 || err != nil {
		t.Fatalf("Write = (%d, %v), expected (3, nil)", n, err)
	}
	if !bytes.Equal(rw.wrote, []byte("out")) {
		t.Fatalf("stream wrote %q, expected %q", rw.wrote, "out")
	}
}

func TestStreamStopUnblocksPump(t *testing.T) {
	src := startedSource(t, &collectSink{})
	rw := newScriptedRW() // Read blocks immediately
	st := NewStream("test", rw)
	if err := st.Start(src); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- st.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not unblock the pump")
	}
}

func TestSimpleDefaults(t *testing.T) {
	s := &Simple{}
	if got := s.Name(); got != "simple" {
		t.Fatalf("Name = %q, expected %q", got, "simple")
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n, err := s.Write([]byte("abc")); n != 3 || err != nil {
		t.Fatalf("Write = (%d, %v), expected (3, nil)", n, err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	wantErr := errors.New("nope")
	s = &Simple{
		BackendName: "mock",
		WriteFunc:   func(p []byte) (int, error) { return 0, wantErr },
	}
	if got := s.Name(); got != "mock" {
		t.Fatalf("Name = %q, expected %q", got, "mock")
	}
	if _, err := s.Write([]byte("abc")); !errors.Is(err, wantErr) {
		t.Fatalf("Write error = %v, expected %v", err, wantErr)
	}
}
