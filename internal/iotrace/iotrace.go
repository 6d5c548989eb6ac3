// Package iotrace records how long the phases of device I/O take, in a
// compact binary stream a later run can replay. The bench tool uses it
// to break a round trip into write, echo, and drain time.
package iotrace

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

const (
	Magic   uint32 = 0x43444952 // "CDIR"
	Version uint32 = 1
)

type header struct {
	Magic        uint32
	Version      uint32
	PhasesLength uint32
}

// PhaseID names one registered phase of an I/O path.
type PhaseID uint64

var phases = make(map[PhaseID]string)

// RegisterPhase assigns an ID to a phase name. Call it from package
// variable initializers, before any trace is opened; registration is
// not thread safe.
func RegisterPhase(name string) PhaseID {
	id := PhaseID(len(phases) + 1)
	phases[id] = name
	return id
}

type record struct {
	ID       PhaseID
	Duration int64
}

// writer drains records through one goroutine so Record never does file
// I/O on the caller's path.
type writer struct {
	dest     io.Writer
	records  chan record
	finished chan error
}

func (w *writer) run() {
	bw := bufio.NewWriterSize(w.dest, 4096)
	var scratch [16]byte

	for rec := range w.records {
		binary.LittleEndian.PutUint64(scratch[0:8], uint64(rec.ID))
		binary.LittleEndian.PutUint64(scratch[8:16], uint64(rec.Duration))
		if _, err := bw.Write(scratch[:]); err != nil {
			w.finished <- err
			return
		}
	}
	w.finished <- bw.Flush()
}

// The open trace. Record holds the read side while it sends, so Close
// cannot tear the channel down under an in-flight record.
var (
	mu     sync.RWMutex
	active *writer
)

// Close detaches the trace, flushes the writer goroutine, and reports
// any write error it hit.
func (w *writer) Close() error {
	mu.Lock()
	if active != w {
		mu.Unlock()
		return fmt.Errorf("iotrace: already closed")
	}
	active = nil
	mu.Unlock()

	// No Record can reach w past this point.
	close(w.records)
	if err := <-w.finished; err != nil {
		return fmt.Errorf("iotrace: writer: %w", err)
	}
	return nil
}

// Record emits one phase duration into the open trace. With no trace
// open it is a cheap no-op.
func Record(id PhaseID, d time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if active == nil {
		return
	}
	active.records <- record{ID: id, Duration: d.Nanoseconds()}
}

// Recorder tracks the elapsed time between successive phase marks. It
// is not thread safe; give each goroutine its own.
type Recorder struct {
	last time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{last: time.Now()}
}

// Mark records the time since the previous mark under the given phase.
func (r *Recorder) Mark(id PhaseID) {
	now := time.Now()
	Record(id, now.Sub(r.last))
	r.last = now
}

// Start begins writing a trace to w. Only one trace can be open per
// process; close the returned writer to flush it.
func Start(w io.Writer) (io.Closer, error) {
	mu.Lock()
	defer mu.Unlock()
	if active != nil {
		return nil, fmt.Errorf("iotrace: already open")
	}

	names, err := json.Marshal(phases)
	if err != nil {
		return nil, fmt.Errorf("iotrace: marshal phases: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, header{
		Magic:        Magic,
		Version:      Version,
		PhasesLength: uint32(len(names)),
	}); err != nil {
		return nil, fmt.Errorf("iotrace: write header: %w", err)
	}
	if _, err := w.Write(names); err != nil {
		return nil, fmt.Errorf("iotrace: write phases: %w", err)
	}

	tw := &writer{
		dest:     w,
		records:  make(chan record, 4096),
		finished: make(chan error, 1),
	}
	go tw.run()
	active = tw
	return tw, nil
}

// ReadAll replays every record of a trace through fn in write order.
func ReadAll(r io.Reader, fn func(phase string, d time.Duration) error) error {
	buf := bufio.NewReaderSize(r, 4096)

	var hdr header
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("iotrace: bad magic 0x%08x", hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("iotrace: unsupported version %d", hdr.Version)
	}

	var names map[PhaseID]string
	dec := json.NewDecoder(io.LimitReader(buf, int64(hdr.PhasesLength)))
	if err := dec.Decode(&names); err != nil {
		return err
	}

	for {
		var rec record
		if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		name, ok := names[rec.ID]
		if !ok {
			return fmt.Errorf("iotrace: unknown phase %d", rec.ID)
		}
		if err := fn(name, time.Duration(rec.Duration)); err != nil {
			return err
		}
	}
	return nil
}

// PhaseTotal aggregates every record of one phase.
type PhaseTotal struct {
	Name  string
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean duration of the phase.
func (t PhaseTotal) Avg() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// Summarize replays a whole trace and returns per-phase totals ordered
// by phase name.
func Summarize(r io.Reader) ([]PhaseTotal, error) {
	totals := make(map[string]*PhaseTotal)
	if err := ReadAll(r, func(phase string, d time.Duration) error {
		t, ok := totals[phase]
		if !ok {
			t = &PhaseTotal{Name: phase, Min: d, Max: d}
			totals[phase] = t
		}
		t.Count++
		t.Total += d
		if d < t.Min {
			t.Min = d
		}
		if d > t.Max {
			t.Max = d
		}
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]PhaseTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
