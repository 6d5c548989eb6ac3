package cdev

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/tinyrange/chardev/internal/caps"
	"github.com/tinyrange/chardev/internal/ioctl"
)

func int32Payload(v int32) []byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, uint32(v))
	return p
}

func TestDispatchDefaults(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	got, err := d.Dispatch(caps.NewSet(), &Request{Code: CmdGetQuantumRet})
	if err != nil {
		t.Fatalf("get-quantum-ret: %v", err)
	}
	if got != DefaultQuantum {
		t.Fatalf("expected quantum %d, got %d", DefaultQuantum, got)
	}

	got, err = d.Dispatch(caps.NewSet(), &Request{Code: CmdGetQsetRet})
	if err != nil {
		t.Fatalf("get-qset-ret: %v", err)
	}
	if got != DefaultQsetSize {
		t.Fatalf("expected qset size %d, got %d", DefaultQsetSize, got)
	}
}

func TestDispatchPrivilege(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	if _, err := d.Dispatch(caps.NewSet(), &Request{Code: CmdSetQuantumVal, Value: 9}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if got := d.Config().Quantum(); got != DefaultQuantum {
		t.Fatalf("denied command changed quantum to %d", got)
	}

	if _, err := d.Dispatch(admin, &Request{Code: CmdSetQuantumVal, Value: 9}); err != nil {
		t.Fatalf("set-quantum-val: %v", err)
	}
	if got := d.Config().Quantum(); got != 9 {
		t.Fatalf("expected quantum 9, got %d", got)
	}

	// Reads never need the capability.
	if _, err := d.Dispatch(caps.NewSet(), &Request{Code: CmdGetQuantumRet}); err != nil {
		t.Fatalf("get-quantum-ret: %v", err)
	}
}

func TestDispatchReset(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	if _, err := d.Dispatch(admin, &Request{Code: CmdSetQsetVal, Value: 77}); err != nil {
		t.Fatalf("set-qset-val: %v", err)
	}
	if _, err := d.Dispatch(admin, &Request{Code: CmdResetQset}); err != nil {
		t.Fatalf("reset-qset: %v", err)
	}
	if got := d.Config().QsetSize(); got != DefaultQsetSize {
		t.Fatalf("expected qset size back at %d, got %d", DefaultQsetSize, got)
	}
}

func TestDispatchPointerRoundTrip(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	if _, err := d.Dispatch(admin, &Request{Code: CmdSetQuantumPtr, Payload: int32Payload(123)}); err != nil {
		t.Fatalf("set-quantum-ptr: %v", err)
	}

	out := make([]byte, 4)
	if _, err := d.Dispatch(caps.NewSet(), &Request{Code: CmdGetQuantumPtr, Payload: out}); err != nil {
		t.Fatalf("get-quantum-ptr: %v", err)
	}
	if got := int32(binary.LittleEndian.Uint32(out)); got != 123 {
		t.Fatalf("expected 123 in payload, got %d", got)
	}
}

func TestDispatchExchange(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	payload := int32Payload(5)
	ret, err := d.Dispatch(admin, &Request{Code: CmdExchangeQuantum, Payload: payload})
	if err != nil {
		t.Fatalf("exchange-quantum: %v", err)
	}
	if ret != DefaultQuantum {
		t.Fatalf("expected old value %d returned, got %d", DefaultQuantum, ret)
	}
	if got := int32(binary.LittleEndian.Uint32(payload)); got != DefaultQuantum {
		t.Fatalf("expected old value %d written back, got %d", DefaultQuantum, got)
	}
	if got := d.Config().Quantum(); got != 5 {
		t.Fatalf("expected quantum 5, got %d", got)
	}
}

func TestDispatchShift(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	ret, err := d.Dispatch(admin, &Request{Code: CmdShiftQsetVal, Value: 42})
	if err != nil {
		t.Fatalf("shift-qset-val: %v", err)
	}
	if ret != DefaultQsetSize {
		t.Fatalf("expected old value %d returned, got %d", DefaultQsetSize, ret)
	}
	if got := d.Config().QsetSize(); got != 42 {
		t.Fatalf("expected qset size 42, got %d", got)
	}
}

func TestDispatchRejectsForeignCommands(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	if _, err := d.Dispatch(admin, &Request{Code: ioctl.IO('z', 0)}); !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand for foreign magic, got %v", err)
	}
	if _, err := d.Dispatch(admin, &Request{Code: ioctl.IO(CmdMagic, CmdMaxNr+1)}); !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand for high nr, got %v", err)
	}
}

func TestDispatchRejectsContractMismatch(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	// Right family and sequence number, wrong direction bits.
	wrong := ioctl.IOR(CmdMagic, 1, cmdIntSize)
	if _, err := d.Dispatch(admin, &Request{Code: wrong, Payload: int32Payload(1)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	if _, err := d.Dispatch(admin, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil request, got %v", err)
	}
}

func TestDispatchFaultsOnMissingPayload(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	if _, err := d.Dispatch(admin, &Request{Code: CmdSetQuantumPtr}); !errors.Is(err, ErrFault) {
		t.Fatalf("expected ErrFault for nil payload, got %v", err)
	}
	if _, err := d.Dispatch(admin, &Request{Code: CmdSetQuantumPtr, Payload: []byte{1, 2}}); !errors.Is(err, ErrFault) {
		t.Fatalf("expected ErrFault for short payload, got %v", err)
	}
	if got := d.Config().Quantum(); got != DefaultQuantum {
		t.Fatalf("faulted command changed quantum to %d", got)
	}
}

func TestDispatchGateConsultedPerCall(t *testing.T) {
	var mu sync.Mutex
	var checks int
	gate := caps.GateFromFunc(func(caller caps.Set, c caps.Capability) bool {
		mu.Lock()
		checks++
		mu.Unlock()
		return caller.Has(c)
	})
	d := NewDispatcher(nil, gate, nil)
	admin := caps.NewSet(caps.SysAdmin)

	for i := 0; i < 3; i++ {
		if _, err := d.Dispatch(admin, &Request{Code: CmdSetQuantumVal, Value: int32(i + 1)}); err != nil {
			t.Fatalf("set-quantum-val: %v", err)
		}
	}
	// Reads skip the gate entirely.
	if _, err := d.Dispatch(caps.NewSet(), &Request{Code: CmdGetQuantumRet}); err != nil {
		t.Fatalf("get-quantum-ret: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if checks != 3 {
		t.Fatalf("expected 3 gate checks, got %d", checks)
	}
}

func TestDispatchConcurrentExchangesSerialize(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	admin := caps.NewSet(caps.SysAdmin)

	const workers = 8
	results := make(chan int32, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			old, err := d.Dispatch(admin, &Request{Code: CmdExchangeQuantum, Payload: int32Payload(v)})
			if err != nil {
				t.Errorf("exchange-quantum: %v", err)
				return
			}
			results <- old
		}(int32(1000 + i))
	}
	wg.Wait()
	close(results)

	// Every handoff is atomic, so the old values plus the final value
	// are exactly the initial value and the eight inputs, each once.
	allowed := map[int32]bool{DefaultQuantum: true}
	for i := 0; i < workers; i++ {
		allowed[int32(1000+i)] = true
	}
	seen := map[int32]bool{}
	record := func(v int32) {
		if !allowed[v] {
			t.Fatalf("value %d was never written", v)
		}
		if seen[v] {
			t.Fatalf("value %d handed out twice", v)
		}
		seen[v] = true
	}
	for old := range results {
		record(old)
	}
	record(d.Config().Quantum())
	if len(seen) != workers+1 {
		t.Fatalf("expected %d distinct values, got %d", workers+1, len(seen))
	}
}

func TestCommandLookup(t *testing.T) {
	code, ok := CommandByName("exchange-qset")
	if !ok || code != CmdExchangeQset {
		t.Fatalf("expected %v, got %v (%v)", CmdExchangeQset, code, ok)
	}
	if _, ok := CommandByName("no-such-command"); ok {
		t.Fatalf("expected lookup miss")
	}
	if name := CommandName(CmdResetQuantum); name != "reset-quantum" {
		t.Fatalf("expected reset-quantum, got %q", name)
	}

	cmds := Commands()
	if len(cmds) != 14 {
		t.Fatalf("expected 14 commands, got %d", len(cmds))
	}
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1].Code.Nr() >= cmds[i].Code.Nr() {
			t.Fatalf("commands out of order at %d", i)
		}
	}
}
