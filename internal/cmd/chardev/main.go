package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/tinyrange/chardev/internal/caps"
	"github.com/tinyrange/chardev/internal/cdev"
	"github.com/tinyrange/chardev/internal/config"
	"github.com/tinyrange/chardev/internal/console"
	"github.com/tinyrange/chardev/internal/ioctl"
	"github.com/tinyrange/chardev/internal/pool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chardev: %v\n", err)
		if code, ok := cdev.Errno(err); ok {
			os.Exit(code)
		}
		os.Exit(1)
	}
}

type fixCrlf struct {
	w io.Writer
}

func (f *fixCrlf) Write(p []byte) (n int, err error) {
	return f.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'}))
}

const starterTable = `# chardev device table
pools:
  - name: main
    size: 65536
    partitions:
      - label: scratch
        size: 4096
        export: true

devices:
  - name: loop0
    minor: 128
    backend: loopback
    deferral: queue
  - name: mem0
    minor: 48
    backend: mem
    pool: main
    partition: scratch
  - name: sink
`

func run() error {
	configPath := flag.String("config", config.DefaultFilename, "Device table to load")
	dbg := flag.Bool("debug", false, "Enable debug logging")
	nonblock := flag.Bool("nonblock", false, "Fail with EAGAIN instead of blocking")
	privileged := flag.Bool("privileged", false, "Run with every capability")
	timeout := flag.Duration("timeout", 0, "Give up on blocking operations after this long")
	readSize := flag.Int("n", 4096, "Maximum bytes a read drains")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <verb> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Operate the character devices declared in a device table.\n\n")
		fmt.Fprintf(os.Stderr, "Verbs:\n")
		fmt.Fprintf(os.Stderr, "  init                           Write a starter %s\n", config.DefaultFilename)
		fmt.Fprintf(os.Stderr, "  list                           Show every device\n")
		fmt.Fprintf(os.Stderr, "  pools                          Show memory pools and partitions\n")
		fmt.Fprintf(os.Stderr, "  commands                       Show recognized control commands\n")
		fmt.Fprintf(os.Stderr, "  read <device>                  Drain the device to stdout\n")
		fmt.Fprintf(os.Stderr, "  write <device> [text...]       Send text (or stdin) to the device\n")
		fmt.Fprintf(os.Stderr, "  ioctl <device> <cmd> [value]   Run a control command\n")
		fmt.Fprintf(os.Stderr, "  attach <device>                Connect the terminal to the device\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s write loop0 hello\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -privileged ioctl loop0 set-quantum-val 512\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s attach loop0\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *dbg {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(
		&fixCrlf{w: os.Stderr},
		&slog.HandlerOptions{Level: level},
	)))

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return fmt.Errorf("verb required")
	}
	verb, args := args[0], args[1:]

	// Verbs that need no device table.
	switch verb {
	case "init":
		return runInit(*configPath)
	case "commands":
		return runCommands()
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return err
	}
	registry, pools, err := cfg.Build(slog.Default())
	if err != nil {
		return err
	}
	if err := registry.StartAll(); err != nil {
		return err
	}
	defer func() {
		if err := registry.StopAll(); err != nil {
			slog.Warn("stopping devices", "error", err)
		}
	}()

	// Ctrl-C interrupts blocked reads and writes instead of killing the
	// process outright.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	caller := caps.NewSet()
	if *privileged {
		caller = caps.Full()
	}

	switch verb {
	case "list":
		return runList(registry)
	case "pools":
		return runPools(pools)
	case "read":
		return runRead(ctx, registry, args, *readSize, *nonblock)
	case "write":
		return runWrite(ctx, registry, args, *nonblock)
	case "ioctl":
		return runIoctl(registry, args, caller)
	case "attach":
		return runAttach(ctx, registry, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown verb %q", verb)
	}
}

func runInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterTable), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func heading(s string) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return ansi.Style{}.Bold().Styled(s)
	}
	return s
}

func runList(registry *cdev.Registry) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, heading("NAME\tMINOR\tMODE\tPATH\tBACKEND\tCAPACITY\tBUFFERED"))
	for _, dev := range registry.Devices() {
		minor := dev.Minor()
		kind := "direct"
		if minor.EventDriven() {
			kind = "event"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%d\n",
			dev.Name(), uint8(minor), minor.Mode(), kind,
			dev.Backend().Name(), dev.Channel().Capacity(), dev.Channel().Buffered())
	}
	return w.Flush()
}

func runPools(pools *pool.Manager) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, heading("POOL\tSIZE\tFREE\tPARTITION\tSTART\tBYTES\tEXPORT"))
	for _, p := range pools.Pools() {
		parts := p.Partitions()
		if len(parts) == 0 {
			fmt.Fprintf(w, "%s\t%d\t%d\t-\t-\t-\t-\n", p.Name(), p.Size(), p.Available())
			continue
		}
		for i, part := range parts {
			name, size, free := "", "", ""
			if i == 0 {
				name = p.Name()
				size = strconv.Itoa(p.Size())
				free = strconv.Itoa(p.Available())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\n",
				name, size, free, part.Label(), part.Start(), part.Size(), part.Exported())
		}
	}
	return w.Flush()
}

func runCommands() error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, heading("COMMAND\tCODE\tPRIVILEGED\tARGUMENT"))
	for _, cmd := range cdev.Commands() {
		arg := "-"
		if cmd.TakesValue {
			arg = "value"
		}
		fmt.Fprintf(w, "%s\t0x%08x\t%v\t%s\n", cmd.Name, uint32(cmd.Code), cmd.Privileged, arg)
	}
	return w.Flush()
}

func openDevice(registry *cdev.Registry, args []string, verb string) (*cdev.Handle, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s needs a device name", verb)
	}
	return registry.Open(args[0])
}

func runRead(ctx context.Context, registry *cdev.Registry, args []string, max int, nonblock bool) error {
	h, err := openDevice(registry, args, "read")
	if err != nil {
		return err
	}
	defer h.Close()

	data, err := h.Read(ctx, max, nonblock)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runWrite(ctx context.Context, registry *cdev.Registry, args []string, nonblock bool) error {
	h, err := openDevice(registry, args, "write")
	if err != nil {
		return err
	}
	defer h.Close()

	var data []byte
	if len(args) > 1 {
		for i, arg := range args[1:] {
			if i > 0 {
				data = append(data, ' ')
			}
			data = append(data, arg...)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: nothing to write", cdev.ErrInvalidArgument)
	}

	total := 0
	for len(data) > 0 {
		n, err := h.Write(ctx, data, nonblock)
		if err != nil {
			return err
		}
		total += n
		data = data[n:]
	}
	slog.Debug("write finished", "device", args[0], "bytes", total)
	return nil
}

func runIoctl(registry *cdev.Registry, args []string, caller caps.Set) error {
	h, err := openDevice(registry, args, "ioctl")
	if err != nil {
		return err
	}
	defer h.Close()

	if len(args) < 2 {
		return fmt.Errorf("ioctl needs a command name, try the commands verb")
	}
	code, ok := cdev.CommandByName(args[1])
	if !ok {
		return fmt.Errorf("unknown command %q, try the commands verb", args[1])
	}
	var info cdev.CommandInfo
	for _, cmd := range cdev.Commands() {
		if cmd.Code == code {
			info = cmd
			break
		}
	}

	req := &cdev.Request{Code: code}
	if info.TakesValue {
		if len(args) < 3 {
			return fmt.Errorf("%s needs a value", info.Name)
		}
		v, err := strconv.ParseInt(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", args[2], err)
		}
		req.Value = int32(v)
	}
	if code.Dir() != ioctl.DirNone {
		req.Payload = make([]byte, code.Size())
		if code.Dir()&ioctl.DirWrite != 0 {
			binary.LittleEndian.PutUint32(req.Payload, uint32(req.Value))
		}
	}

	ret, err := h.Ioctl(caller, req)
	if err != nil {
		return err
	}

	// Get variants answer with the value, exchange and shift with the
	// value they replaced. Plain sets and resets stay quiet.
	switch {
	case code.Dir()&ioctl.DirRead != 0:
		fmt.Printf("%d\n", int32(binary.LittleEndian.Uint32(req.Payload)))
	case code == cdev.CmdGetQuantumRet || code == cdev.CmdGetQsetRet,
		code == cdev.CmdShiftQuantumVal || code == cdev.CmdShiftQsetVal:
		fmt.Printf("%d\n", ret)
	}
	return nil
}

func runAttach(ctx context.Context, registry *cdev.Registry, args []string) error {
	h, err := openDevice(registry, args, "attach")
	if err != nil {
		return err
	}
	defer h.Close()
	dev := h.Device()

	out := io.Writer(os.Stdout)
	banner := console.Banner(dev.Name(), dev.Backend().Name())
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("enable raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)
		out = &fixCrlf{w: os.Stdout}
	} else {
		banner = ansi.Strip(banner)
	}
	fmt.Fprint(out, banner)

	start := time.Now()
	err = console.Attach(ctx, dev, os.Stdin, out, console.DefaultEscape)
	stats := dev.Channel().Stats()
	fmt.Fprintf(out, "\r\ndetached after %s (%d bytes in, %d bytes out)\r\n",
		time.Since(start).Round(time.Millisecond), stats.BytesWritten, stats.BytesRead)
	return err
}
