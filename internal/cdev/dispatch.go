package cdev

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/tinyrange/chardev/internal/caps"
	"github.com/tinyrange/chardev/internal/ioctl"
)

// Request is one decoded control command against a device. Pointer-style
// commands read from and write back into Payload; value-style commands
// pass their argument in Value.
type Request struct {
	Code    ioctl.Code
	Payload []byte
	Value   int32
}

// Dispatcher validates and executes control commands against one
// device's configuration. It never suspends; the only waiting it does is
// on the config mutex.
type Dispatcher struct {
	cfg  *Config
	gate caps.Gate
	log  *slog.Logger
}

// NewDispatcher creates a dispatcher over cfg. A nil gate gets the
// strict capability gate, a nil logger slog.Default.
func NewDispatcher(cfg *Config, gate caps.Gate, log *slog.Logger) *Dispatcher {
	if cfg == nil {
		cfg = NewConfig()
	}
	if gate == nil {
		gate = caps.StrictGate()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cfg: cfg, gate: gate, log: log}
}

// Config returns the configuration the dispatcher operates on.
func (d *Dispatcher) Config() *Config {
	return d.cfg
}

// Dispatch validates req and runs it for a caller holding the given
// capabilities. Get variants return the field value where declared;
// exchange and shift return the value that was replaced.
func (d *Dispatcher) Dispatch(caller caps.Set, req *Request) (int32, error) {
	if req == nil {
		return 0, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	code := req.Code

	if code.Type() != CmdMagic {
		return 0, fmt.Errorf("%w: type 0x%02x", ErrUnsupportedCommand, code.Type())
	}
	if code.Nr() > CmdMaxNr {
		return 0, fmt.Errorf("%w: nr %d", ErrUnsupportedCommand, code.Nr())
	}
	info, ok := commands[code]
	if !ok {
		// The family and sequence number are recognized, so the
		// direction or size bits disagree with the command's contract.
		return 0, fmt.Errorf("%w: %v does not match the declared contract", ErrInvalidArgument, code)
	}
	if code.Dir() != ioctl.DirNone && len(req.Payload) < int(code.Size()) {
		return 0, fmt.Errorf("%w: %s needs %d payload bytes, have %d",
			ErrFault, info.name, code.Size(), len(req.Payload))
	}
	if info.privileged && !d.gate.Check(caller, caps.SysAdmin) {
		return 0, fmt.Errorf("%w: %s", ErrPermissionDenied, info.name)
	}

	d.cfg.mu.Lock()
	defer d.cfg.mu.Unlock()
	value := d.cfg.fieldLocked(info.field)

	var ret int32
	switch info.op {
	case opReset:
		*value = info.field.defaultValue()
	case opSetPtr:
		*value = int32(binary.LittleEndian.Uint32(req.Payload))
	case opSetVal:
		*value = req.Value
	case opGetPtr:
		binary.LittleEndian.PutUint32(req.Payload, uint32(*value))
	case opGetRet:
		ret = *value
	case opExchange:
		old := *value
		*value = int32(binary.LittleEndian.Uint32(req.Payload))
		binary.LittleEndian.PutUint32(req.Payload, uint32(old))
		ret = old
	case opShift:
		ret = *value
		*value = req.Value
	}

	d.log.Debug("dispatched command",
		"cmd", info.name, "field", info.field.String(), "value", *value)
	return ret, nil
}
