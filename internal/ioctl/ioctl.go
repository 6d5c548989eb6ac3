// Package ioctl encodes control-command numbers in the Linux _IOC layout:
// an 8-bit sequence number, an 8-bit type tag, a 14-bit payload size, and
// a 2-bit transfer direction packed into a uint32. Devices register a type
// tag and validate incoming codes against it.
package ioctl

import "fmt"

// Dir is the transfer direction a command declares for its payload, from
// the caller's point of view.
type Dir uint8

const (
	DirNone  Dir = 0
	DirWrite Dir = 1
	DirRead  Dir = 2
	DirBoth  Dir = DirWrite | DirRead
)

func (d Dir) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirWrite:
		return "w"
	case DirRead:
		return "r"
	case DirBoth:
		return "rw"
	default:
		return "invalid"
	}
}

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14
	dirBits  = 2

	nrMask   = 1<<nrBits - 1
	typeMask = 1<<typeBits - 1
	sizeMask = 1<<sizeBits - 1
	dirMask  = 1<<dirBits - 1

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits
)

// MaxSize is the largest payload size a Code can carry.
const MaxSize = sizeMask

// Code is an encoded control-command number.
type Code uint32

func encode(dir Dir, typ byte, nr uint8, size uint16) Code {
	return Code(uint32(dir)<<dirShift |
		uint32(typ)<<typeShift |
		uint32(size&sizeMask)<<sizeShift |
		uint32(nr)<<nrShift)
}

// IO builds a code with no payload.
func IO(typ byte, nr uint8) Code {
	return encode(DirNone, typ, nr, 0)
}

// IOR builds a code whose payload is read by the caller.
func IOR(typ byte, nr uint8, size uint16) Code {
	return encode(DirRead, typ, nr, size)
}

// IOW builds a code whose payload is written by the caller.
func IOW(typ byte, nr uint8, size uint16) Code {
	return encode(DirWrite, typ, nr, size)
}

// IOWR builds a code whose payload is written then read back.
func IOWR(typ byte, nr uint8, size uint16) Code {
	return encode(DirBoth, typ, nr, size)
}

// Dir returns the declared transfer direction.
func (c Code) Dir() Dir {
	return Dir(c >> dirShift & dirMask)
}

// Type returns the type tag identifying the command family.
func (c Code) Type() byte {
	return byte(c >> typeShift & typeMask)
}

// Nr returns the sequence number within the family.
func (c Code) Nr() uint8 {
	return uint8(c >> nrShift & nrMask)
}

// Size returns the declared payload size in bytes.
func (c Code) Size() uint16 {
	return uint16(c >> sizeShift & sizeMask)
}

func (c Code) String() string {
	return fmt.Sprintf("0x%08x (type %q nr %d dir %s size %d)",
		uint32(c), rune(c.Type()), c.Nr(), c.Dir(), c.Size())
}
