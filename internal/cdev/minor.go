package cdev

import (
	"fmt"
	"strings"
)

// Mode names which backend class a device reads and writes through. The
// modes beyond Default carry no behavior of their own here; they only
// select the attachment.
type Mode int

const (
	ModeDefault Mode = iota
	ModePause
	ModeString
	ModeMemory

	modeCount
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModePause:
		return "pause"
	case ModeString:
		return "string"
	case ModeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return ModeDefault, nil
	case "pause":
		return ModePause, nil
	case "string":
		return ModeString, nil
	case "memory":
		return ModeMemory, nil
	default:
		return ModeDefault, fmt.Errorf("unknown mode %q", s)
	}
}

// Minor packs a device's identity the way the original driver numbers
// did: the low nibble is the port index, bits 4 to 6 the access mode,
// and bit 7 marks the event-driven device whose data arrives through
// the interrupt-like path instead of its own writes.
type Minor uint8

// MakeMinor composes a Minor from its parts.
func MakeMinor(port int, mode Mode, eventDriven bool) Minor {
	m := Minor(port&0x0f) | Minor(mode&0x7)<<4
	if eventDriven {
		m |= 0x80
	}
	return m
}

// Port returns the port index in the low nibble.
func (m Minor) Port() int {
	return int(m & 0x0f)
}

// Mode returns the access mode in bits 4 to 6.
func (m Minor) Mode() Mode {
	return Mode(m >> 4 & 0x7)
}

// EventDriven reports whether bit 7 selects the event-driven path.
func (m Minor) EventDriven() bool {
	return m&0x80 != 0
}

// Validate rejects minors whose mode bits name no known mode.
func (m Minor) Validate() error {
	if m.Mode() >= modeCount {
		return fmt.Errorf("%w: minor %d carries unknown mode bits", ErrInvalidArgument, m)
	}
	return nil
}

func (m Minor) String() string {
	kind := "direct"
	if m.EventDriven() {
		kind = "event"
	}
	return fmt.Sprintf("%d (port %d, %s, %s)", uint8(m), m.Port(), m.Mode(), kind)
}
