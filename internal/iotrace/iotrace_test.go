package iotrace

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	phaseWrite = RegisterPhase("write")
	phaseDrain = RegisterPhase("drain")
)

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	func() {
		w, err := Start(&buf)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer w.Close()

		Record(phaseWrite, 100*time.Millisecond)
		Record(phaseDrain, 200*time.Millisecond)
	}()

	var seen []string
	var total time.Duration
	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(phase string, d time.Duration) error {
		seen = append(seen, phase)
		total += d
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(seen) != 2 || seen[0] != "write" || seen[1] != "drain" {
		t.Fatalf("unexpected phases %v", seen)
	}
	if total != 300*time.Millisecond {
		t.Fatalf("expected 300ms total, got %s", total)
	}
}

func TestSingleTracePerProcess(t *testing.T) {
	var buf bytes.Buffer
	w, err := Start(&buf)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := Start(&buf); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Fatalf("expected second Close to fail")
	}
}

func TestRecordWithoutTrace(t *testing.T) {
	// Must not block or panic.
	Record(phaseWrite, time.Millisecond)
}

func TestRecorderMarks(t *testing.T) {
	var buf bytes.Buffer
	func() {
		w, err := Start(&buf)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer w.Close()

		r := NewRecorder()
		r.Mark(phaseWrite)
		r.Mark(phaseDrain)
	}()

	var count int
	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(string, time.Duration) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
}

func TestSummarizePerPhaseTotals(t *testing.T) {
	var buf bytes.Buffer
	func() {
		w, err := Start(&buf)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer w.Close()

		Record(phaseWrite, 10*time.Millisecond)
		Record(phaseWrite, 30*time.Millisecond)
		Record(phaseDrain, 5*time.Millisecond)
	}()

	totals, err := Summarize(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(totals))
	}
	// Sorted by name: drain before write.
	drain, write := totals[0], totals[1]
	if drain.Name != "drain" || drain.Count != 1 || drain.Total != 5*time.Millisecond {
		t.Fatalf("unexpected drain totals %+v", drain)
	}
	if write.Name != "write" || write.Count != 2 || write.Total != 40*time.Millisecond {
		t.Fatalf("unexpected write totals %+v", write)
	}
	if write.Min != 10*time.Millisecond || write.Max != 30*time.Millisecond {
		t.Fatalf("unexpected write min/max %+v", write)
	}
	if write.Avg() != 20*time.Millisecond {
		t.Fatalf("expected 20ms average, got %s", write.Avg())
	}
}

func TestConcurrentRecordAndClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := Start(&buf)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Hammer Record from several goroutines while Close tears the trace
	// down. Records that land after Close are dropped; none may panic on
	// the closed channel.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				Record(phaseWrite, time.Microsecond)
			}
		}()
	}
	close(start)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(string, time.Duration) error {
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
}

func TestReadAllRejectsForeignData(t *testing.T) {
	if err := ReadAll(bytes.NewReader([]byte("not a trace, definitely")), func(string, time.Duration) error {
		return nil
	}); err == nil {
		t.Fatalf("expected bad magic error")
	}
}

func BenchmarkRecord(b *testing.B) {
	var buf bytes.Buffer
	var count uint64
	func() {
		w, err := Start(&buf)
		if err != nil {
			b.Fatalf("Start: %v", err)
		}
		defer w.Close()

		b.ResetTimer()

		for b.Loop() {
			Record(phaseWrite, 100*time.Millisecond)
			atomic.AddUint64(&count, 1)
		}
	}()

	b.ReportMetric(float64(count), "records")
	b.StopTimer()

	var seen uint64
	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(string, time.Duration) error {
		atomic.AddUint64(&seen, 1)
		return nil
	}); err != nil {
		b.Fatalf("ReadAll: %v", err)
	}
	if seen != count {
		b.Fatalf("expected %d records, got %d", count, seen)
	}
}
