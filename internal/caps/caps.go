// Package caps models the capability check consulted before privileged
// device commands.
package caps

import "strings"

// Capability names one privilege a caller may hold.
type Capability uint8

const (
	// SysAdmin covers configuration-mutating device commands.
	SysAdmin Capability = iota
	// SysRawIO covers direct access to memory-backed port regions.
	SysRawIO

	capabilityCount
)

func (c Capability) String() string {
	switch c {
	case SysAdmin:
		return "sys_admin"
	case SysRawIO:
		return "sys_rawio"
	default:
		return "unknown"
	}
}

// Set is the bitmask of capabilities granted to a calling context.
type Set uint32

// NewSet builds a Set holding the given capabilities.
func NewSet(capabilities ...Capability) Set {
	var s Set
	for _, c := range capabilities {
		s |= 1 << c
	}
	return s
}

// Full returns a Set holding every defined capability.
func Full() Set {
	return 1<<capabilityCount - 1
}

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	return s&(1<<c) != 0
}

// With returns a copy of the set with c granted.
func (s Set) With(c Capability) Set {
	return s | 1<<c
}

// Without returns a copy of the set with c dropped.
func (s Set) Without(c Capability) Set {
	return s &^ (1 << c)
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	var names []string
	for c := Capability(0); c < capabilityCount; c++ {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return strings.Join(names, ",")
}

// Gate decides whether a calling context may exercise a capability. It is
// stateless and consulted on every privileged dispatch, never cached.
type Gate interface {
	Check(caller Set, c Capability) bool
}

type strictGate struct{}

func (strictGate) Check(caller Set, c Capability) bool {
	return caller.Has(c)
}

// StrictGate returns the default gate: a capability is granted exactly
// when present in the caller's set.
func StrictGate() Gate {
	return strictGate{}
}

type gateFunc func(Set, Capability) bool

func (f gateFunc) Check(caller Set, c Capability) bool {
	return f(caller, c)
}

// GateFromFunc adapts a plain function to the Gate interface.
func GateFromFunc(fn func(caller Set, c Capability) bool) Gate {
	return gateFunc(fn)
}

var (
	_ Gate = strictGate{}
	_ Gate = gateFunc(nil)
)
