package cdev

import (
	"sort"

	"github.com/tinyrange/chardev/internal/ioctl"
)

// CmdMagic is the type tag of this device family's control commands.
const CmdMagic byte = 'k'

// cmdIntSize is the payload size of every pointer-style command.
const cmdIntSize = 4

// The recognized control commands. Each configuration field gets seven
// variants: reset, set by pointer, set by value, get by pointer, get by
// return, exchange by pointer, and shift (set by value returning the old
// value).
var (
	CmdResetQuantum    = ioctl.IO(CmdMagic, 0)
	CmdSetQuantumPtr   = ioctl.IOW(CmdMagic, 1, cmdIntSize)
	CmdSetQuantumVal   = ioctl.IO(CmdMagic, 2)
	CmdGetQuantumPtr   = ioctl.IOR(CmdMagic, 3, cmdIntSize)
	CmdGetQuantumRet   = ioctl.IO(CmdMagic, 4)
	CmdExchangeQuantum = ioctl.IOWR(CmdMagic, 5, cmdIntSize)
	CmdShiftQuantumVal = ioctl.IO(CmdMagic, 6)

	CmdResetQset    = ioctl.IO(CmdMagic, 7)
	CmdSetQsetPtr   = ioctl.IOW(CmdMagic, 8, cmdIntSize)
	CmdSetQsetVal   = ioctl.IO(CmdMagic, 9)
	CmdGetQsetPtr   = ioctl.IOR(CmdMagic, 10, cmdIntSize)
	CmdGetQsetRet   = ioctl.IO(CmdMagic, 11)
	CmdExchangeQset = ioctl.IOWR(CmdMagic, 12, cmdIntSize)
	CmdShiftQsetVal = ioctl.IO(CmdMagic, 13)
)

// CmdMaxNr is the highest recognized sequence number.
const CmdMaxNr = 13

// cmdOp is the operation a command performs on its field.
type cmdOp int

const (
	opReset cmdOp = iota
	opSetPtr
	opSetVal
	opGetPtr
	opGetRet
	opExchange
	opShift
)

type cmdInfo struct {
	name       string
	field      field
	op         cmdOp
	privileged bool
}

var commands = map[ioctl.Code]cmdInfo{
	CmdResetQuantum:    {"reset-quantum", fieldQuantum, opReset, true},
	CmdSetQuantumPtr:   {"set-quantum-ptr", fieldQuantum, opSetPtr, true},
	CmdSetQuantumVal:   {"set-quantum-val", fieldQuantum, opSetVal, true},
	CmdGetQuantumPtr:   {"get-quantum-ptr", fieldQuantum, opGetPtr, false},
	CmdGetQuantumRet:   {"get-quantum-ret", fieldQuantum, opGetRet, false},
	CmdExchangeQuantum: {"exchange-quantum", fieldQuantum, opExchange, true},
	CmdShiftQuantumVal: {"shift-quantum-val", fieldQuantum, opShift, true},

	CmdResetQset:    {"reset-qset", fieldQset, opReset, true},
	CmdSetQsetPtr:   {"set-qset-ptr", fieldQset, opSetPtr, true},
	CmdSetQsetVal:   {"set-qset-val", fieldQset, opSetVal, true},
	CmdGetQsetPtr:   {"get-qset-ptr", fieldQset, opGetPtr, false},
	CmdGetQsetRet:   {"get-qset-ret", fieldQset, opGetRet, false},
	CmdExchangeQset: {"exchange-qset", fieldQset, opExchange, true},
	CmdShiftQsetVal: {"shift-qset-val", fieldQset, opShift, true},
}

// CommandInfo describes one recognized command for tooling.
type CommandInfo struct {
	Name       string
	Code       ioctl.Code
	Privileged bool
	TakesValue bool // the command consumes an argument (payload or immediate)
}

// CommandByName resolves a command's tooling name to its code.
func CommandByName(name string) (ioctl.Code, bool) {
	for code, info := range commands {
		if info.name == name {
			return code, true
		}
	}
	return 0, false
}

// CommandName returns the tooling name of a recognized code, or "" for
// anything else.
func CommandName(code ioctl.Code) string {
	return commands[code].name
}

// Commands lists every recognized command ordered by sequence number.
func Commands() []CommandInfo {
	out := make([]CommandInfo, 0, len(commands))
	for code, info := range commands {
		out = append(out, CommandInfo{
			Name:       info.name,
			Code:       code,
			Privileged: info.privileged,
			TakesValue: info.op == opSetPtr || info.op == opSetVal || info.op == opExchange || info.op == opShift,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code.Nr() < out[j].Code.Nr() })
	return out
}
