package ports

import "github.com/tinyrange/chardev/internal/event"

// Null discards writes and produces nothing, for devices that only need
// the channel semantics.
type Null struct{}

// NewNull creates the discard backend.
func NewNull() *Null {
	return &Null{}
}

func (*Null) Name() string {
	return "null"
}

func (*Null) Start(src *event.Source) error {
	return nil
}

func (*Null) Write(p []byte) (int, error) {
	return len(p), nil
}

func (*Null) Stop() error {
	return nil
}

var _ Backend = (*Null)(nil)
