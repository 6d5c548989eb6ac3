package event

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

// collectSink records delivered bytes and can cap how much it accepts.
type collectSink struct {
	mu     sync.Mutex
	data   []byte
	accept int // max bytes per call, 0 means everything
}

func (c *collectSink) OnEventData(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(p)
	if c.accept > 0 && n > c.accept {
		n = c.accept
	}
	c.data = append(c.data, p[:n]...)
	return n
}

func (c *collectSink) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...)
}

func TestInlineDelivery(t *testing.T) {
	sink := &collectSink{}
	src := NewSource(sink, Inline, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	if n := src.Deliver([]byte("tick")); n != 4 {
		t.Fatalf("Deliver = %d, expected 4", n)
	}
	// Inline mode runs the sink before Deliver returns.
	if got := sink.bytes(); !bytes.Equal(got, []byte("tick")) {
		t.Fatalf("sink saw %q, expected %q", got, "tick")
	}

	stats := src.Stats()
	if stats.Events != 1 || stats.Delivered != 4 || stats.Dropped != 0 {
		t.Fatalf("stats = %+v, expected 1 event, 4 delivered, 0 dropped", stats)
	}
}

func TestTaskDelivery(t *testing.T) {
	sink := &collectSink{}
	src := NewSource(sink, Task, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	buf := []byte("abc")
	src.Deliver(buf)
	// The async modes must copy: clobber the caller's buffer right away.
	copy(buf, "xyz")

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sink.bytes(); !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("sink saw %q, expected %q", got, "abc")
	}
}

func TestQueueDeliveryKeepsOrder(t *testing.T) {
	sink := &collectSink{}
	src := NewSource(sink, Queue, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.Deliver([]byte("one "))
	src.Deliver([]byte("two "))
	src.Deliver([]byte("three"))

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sink.bytes(); !bytes.Equal(got, []byte("one two three")) {
		t.Fatalf("sink saw %q, expected %q", got, "one two three")
	}
}

func TestStoppedSourceDrops(t *testing.T) {
	sink := &collectSink{}
	src := NewSource(sink, Inline, nil)

	if n := src.Deliver([]byte("lost")); n != 0 {
		t.Fatalf("Deliver on stopped source = %d, expected 0", n)
	}
	stats := src.Stats()
	if stats.Dropped != 4 {
		t.Fatalf("Dropped = %d, expected 4", stats.Dropped)
	}
	if got := sink.bytes(); len(got) != 0 {
		t.Fatalf("stopped source delivered %q", got)
	}
}

func TestOverrunCountsDropped(t *testing.T) {
	sink := &collectSink{accept: 2}
	src := NewSource(sink, Inline, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	src.Deliver([]byte("abcdef"))
	stats := src.Stats()
	if stats.Delivered != 2 || stats.Dropped != 4 {
		t.Fatalf("stats = %+v, expected 2 delivered and 4 dropped", stats)
	}
}

func TestDoubleStart(t *testing.T) {
	src := NewSource(&collectSink{}, Inline, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(); err == nil {
		t.Fatalf("second Start expected error, got nil")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); err == nil {
		t.Fatalf("second Stop expected error, got nil")
	}
}

func TestParseDeferral(t *testing.T) {
	cases := []struct {
		in   string
		want Deferral
		ok   bool
	}{
		{"", Inline, true},
		{"inline", Inline, true},
		{"task", Task, true},
		{"queue", Queue, true},
		{"Queue", Queue, true},
		{"bogus", Inline, false},
	}
	for _, tc := range cases {
		got, err := ParseDeferral(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseDeferral(%q) error = %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseDeferral(%q) expected error", tc.in)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseDeferral(%q) = %v, expected %v", tc.in, got, tc.want)
		}
	}
}

// TestConcurrentDeliver hammers a queue source from several goroutines to
// shake out races between Deliver and Stop.
func TestConcurrentDeliver(t *testing.T) {
	sink := &collectSink{}
	src := NewSource(sink, Queue, nil)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				src.Deliver([]byte{byte(j)})
				time.Sleep(time.Microsecond)
			}
		}()
	}
	wg.Wait()
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	stats := src.Stats()
	if stats.Events != 400 {
		t.Fatalf("Events = %d, expected 400", stats.Events)
	}
	if stats.Delivered+stats.Dropped != 400 {
		t.Fatalf("Delivered+Dropped = %d, expected 400", stats.Delivered+stats.Dropped)
	}
}
