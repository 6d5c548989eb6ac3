package ports

import (
	"fmt"
	"sync"

	"github.com/tinyrange/chardev/internal/event"
)

// Mem lands written bytes in a fixed memory region, wrapping around when
// the end is reached. The region usually comes from a pool partition, so
// what a device wrote stays inspectable after the fact. Mem produces no
// events; reads on a purely memory-backed device block until other input
// arrives.
type Mem struct {
	mu     sync.Mutex
	region []byte
	off    int
	total  uint64
}

// NewMem creates a backend over region. The caller keeps ownership of the
// slice; partition-backed regions stay visible through their pool.
func NewMem(region []byte) (*Mem, error) {
	if len(region) == 0 {
		return nil, fmt.Errorf("mem: region must not be empty")
	}
	return &Mem{region: region}, nil
}

func (m *Mem) Name() string {
	return "mem"
}

func (m *Mem) Start(src *event.Source) error {
	return nil
}

func (m *Mem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	written := len(p)
	for len(p) > 0 {
		n := copy(m.region[m.off:], p)
		m.off = (m.off + n) % len(m.region)
		m.total += uint64(n)
		p = p[n:]
	}
	return written, nil
}

func (m *Mem) Stop() error {
	return nil
}

// Offset returns the next write position within the region.
func (m *Mem) Offset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.off
}

// Total returns the number of bytes ever written.
func (m *Mem) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

var _ Backend = (*Mem)(nil)
