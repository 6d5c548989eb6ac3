//go:build ignore

// This file demonstrates every public API in the chardev package.
// It is excluded from the build and serves as a reference and compile-time check.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	chardev "github.com/tinyrange/chardev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// =========================================================================
	// NewDevice - a loopback device whose writes come back as reads
	// =========================================================================
	dev, err := chardev.NewDevice("loop0",
		chardev.WithMinor(chardev.MakeMinor(0, chardev.ModeDefault, true)),
		chardev.WithBackend(chardev.NewLoopback()),
		chardev.WithDeferral(chardev.Queue),
		chardev.WithCapacity(4096),
		chardev.WithTunables(512, 64),
	)
	if err != nil {
		return fmt.Errorf("new device: %w", err)
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	defer dev.Close()

	// =========================================================================
	// Read / Write - blocking, non-blocking, and interruptible
	// =========================================================================
	if _, err := dev.Write(ctx, []byte("hello"), false); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	data, err := dev.Read(ctx, 64, false) // blocks until the echo arrives
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Printf("echoed: %q\n", data)

	// Non-blocking calls fail fast instead of suspending.
	if _, err := dev.Read(ctx, 64, true); errors.Is(err, chardev.ErrWouldBlock) {
		fmt.Println("nothing buffered")
	}

	// A context deadline interrupts a blocked call with ErrInterrupted.
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	_, err = dev.Read(short, 64, false)
	cancel()
	if errors.Is(err, chardev.ErrInterrupted) {
		if code, ok := chardev.Errno(err); ok {
			fmt.Printf("interrupted, errno %d\n", code)
		}
	}

	// =========================================================================
	// Ioctl - capability-gated control commands over the device tunables
	// =========================================================================
	admin := chardev.NewCapabilitySet(chardev.SysAdmin)

	old, err := dev.Ioctl(admin, &chardev.Request{
		Code: chardev.CmdShiftQuantumVal, Value: 2048,
	})
	if err != nil {
		return fmt.Errorf("shift quantum: %w", err)
	}
	fmt.Printf("quantum was %d\n", old)

	// Reads need no capability at all.
	quantum, err := dev.Ioctl(chardev.NewCapabilitySet(), &chardev.Request{
		Code: chardev.CmdGetQuantumRet,
	})
	if err != nil {
		return fmt.Errorf("get quantum: %w", err)
	}
	fmt.Printf("quantum is %d\n", quantum)

	// Every recognized command, for tooling.
	for _, cmd := range chardev.Commands() {
		fmt.Printf("  %-18s 0x%08x privileged=%v\n", cmd.Name, uint32(cmd.Code), cmd.Privileged)
	}

	// =========================================================================
	// Device tables - declare devices and pools in YAML
	// =========================================================================
	table, err := chardev.LoadTable([]byte(`
pools:
  - name: main
    size: 65536
    partitions:
      - label: scratch
        size: 4096

devices:
  - name: mem0
    minor: 48
    backend: mem
    pool: main
    partition: scratch
`))
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}

	registry, pools, err := table.Build(nil)
	if err != nil {
		return fmt.Errorf("build table: %w", err)
	}
	if err := registry.StartAll(); err != nil {
		return fmt.Errorf("start devices: %w", err)
	}
	defer registry.CloseAll()
	defer registry.StopAll()

	// Handles are independent open descriptors on a device.
	h, err := registry.Open("mem0")
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer h.Close()

	if _, err := h.Write(ctx, []byte("persisted"), false); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	// The mem backend mirrored the write into its pool partition.
	if p, ok := pools.Get("main"); ok {
		if part, ok := p.Partition("scratch"); ok {
			fmt.Printf("partition %s: %q\n", part.Label(), part.Bytes()[:9])
		}
	}

	// =========================================================================
	// Standalone pieces - channels, pools, and gates without a Device
	// =========================================================================
	ch, err := chardev.NewChannel("scratch", 128, nil)
	if err != nil {
		return fmt.Errorf("new channel: %w", err)
	}
	if _, err := ch.Write(ctx, []byte("direct"), false); err != nil {
		return fmt.Errorf("channel write: %w", err)
	}
	if _, err := ch.Read(ctx, 128, false); err != nil {
		return fmt.Errorf("channel read: %w", err)
	}
	_ = ch.Close()

	p, err := chardev.NewPool("spare", 1024)
	if err != nil {
		return fmt.Errorf("new pool: %w", err)
	}
	if _, err := p.Reserve("hdr", 0, 64, true); err != nil {
		return fmt.Errorf("reserve: %w", err)
	}

	disp := chardev.NewDispatcher(nil, chardev.StrictGate(), nil)
	if _, err := disp.Dispatch(admin, &chardev.Request{Code: chardev.CmdResetQuantum}); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	return nil
}
