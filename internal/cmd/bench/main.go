package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	chardev "github.com/tinyrange/chardev"

	"github.com/tinyrange/chardev/internal/iotrace"
)

var (
	phaseWrite = iotrace.RegisterPhase("bench::write")
	phaseDrain = iotrace.RegisterPhase("bench::drain")
)

type benchmark struct {
	dev *chardev.Device
}

// runOnce pushes one message through the loopback path and drains it
// back out.
func (b *benchmark) runOnce(ctx context.Context, msg, readBuf []byte) error {
	rec := iotrace.NewRecorder()

	for off := 0; off < len(msg); {
		n, err := b.dev.Write(ctx, msg[off:], false)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		off += n
	}
	rec.Mark(phaseWrite)

	for got := 0; got < len(msg); {
		data, err := b.dev.Read(ctx, len(readBuf), false)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		got += len(data)
		if got > len(msg) {
			return fmt.Errorf("read %d bytes for a %d byte message", got, len(msg))
		}
	}
	rec.Mark(phaseDrain)
	return nil
}

func (b *benchmark) run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	n := fs.Int("n", 10000, "the number of messages to push through the device")
	size := fs.Int("size", 4096, "bytes per message")
	capacity := fs.Int("capacity", 64*1024, "ring buffer capacity")
	deferral := fs.String("deferral", "inline", "event delivery mode (inline, task, queue)")
	traceFile := fs.String("trace", "", "write a phase trace to this file")
	replayFile := fs.String("replay", "", "summarize a previously written trace and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	if *replayFile != "" {
		return replayTrace(*replayFile)
	}
	if *size > *capacity {
		return fmt.Errorf("message size %d does not fit the %d byte ring", *size, *capacity)
	}

	mode, err := chardev.ParseDeferral(*deferral)
	if err != nil {
		return err
	}

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer f.Close()
		trace, err := iotrace.Start(f)
		if err != nil {
			return err
		}
		defer func() {
			if err := trace.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "flush trace: %v\n", err)
			}
		}()
	}

	dev, err := chardev.NewDevice("bench0",
		chardev.WithMinor(chardev.MakeMinor(0, chardev.ModeDefault, true)),
		chardev.WithBackend(chardev.NewLoopback()),
		chardev.WithDeferral(mode),
		chardev.WithCapacity(*capacity),
	)
	if err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		return err
	}
	defer dev.Close()

	b.dev = dev

	ctx := context.Background()
	msg := make([]byte, *size)
	for i := range msg {
		msg[i] = byte(i)
	}
	readBuf := make([]byte, *capacity)

	// Warm up once so the measured loop starts with a settled device.
	if err := b.runOnce(ctx, msg, readBuf); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	start := time.Now()

	pb := progressbar.Default(int64(*n))
	defer pb.Close()

	for range *n {
		if err := b.runOnce(ctx, msg, readBuf); err != nil {
			return err
		}
		pb.Add(1)
	}

	elapsed := time.Since(start)
	total := int64(*n) * int64(*size)
	stats := dev.Channel().Stats()
	src := dev.Source().Stats()

	fmt.Printf("\n%d messages of %d bytes in %s\n", *n, *size, elapsed.Round(time.Millisecond))
	fmt.Printf("throughput: %.1f MB/s\n", float64(total)/elapsed.Seconds()/(1<<20))
	fmt.Printf("events: %d delivered, %d dropped\n", src.Delivered, src.Dropped)
	fmt.Printf("wakeups: %d readers, %d writers\n", stats.ReaderWakes, stats.WriterWakes)
	if *traceFile != "" {
		fmt.Printf("trace: %s (summarize with -replay %s)\n", *traceFile, *traceFile)
	}
	return nil
}

// replayTrace prints per-phase totals from an earlier -trace run.
func replayTrace(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	totals, err := iotrace.Summarize(f)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	for _, t := range totals {
		fmt.Printf("%-16s %8d calls  total %-14s avg %-12s min %-12s max %s\n",
			t.Name, t.Count, t.Total, t.Avg(), t.Min, t.Max)
	}
	return nil
}

func main() {
	b := benchmark{}

	if err := b.run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run benchmark: %v\n", err)
		os.Exit(1)
	}
}
