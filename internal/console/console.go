// Package console wires a local terminal to a device: raw keyboard input
// becomes device writes, device data becomes terminal output, and an
// escape byte ends the session.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/x/ansi"

	"github.com/tinyrange/chardev/internal/cdev"
)

// DefaultEscape is Ctrl-], the byte that detaches a session.
const DefaultEscape byte = 0x1d

// Banner renders the session header shown when an attach begins. The
// returned string carries styling; use ansi.Strip for plain output.
func Banner(device, backend string) string {
	name := ansi.Style{}.Bold().Styled(device)
	hint := ansi.Style{}.Faint().Styled("Ctrl-] detaches")
	return fmt.Sprintf("-- %s (%s) -- %s%s\r\n", name, backend, hint, ansi.ResetStyle)
}

// BannerWidth returns the printable width of a banner line.
func BannerWidth(device, backend string) int {
	return ansi.StringWidth(Banner(device, backend))
}

// SplitEscape scans p for the escape byte. It returns everything before
// the escape and whether the escape was seen; bytes after it are
// discarded.
func SplitEscape(p []byte, escape byte) ([]byte, bool) {
	for i, b := range p {
		if b == escape {
			return p[:i], true
		}
	}
	return p, false
}

// Attach pumps in to the device and the device to out until the escape
// byte arrives, the device closes, or ctx fires. Detach and device close
// end the session cleanly; everything else comes back as an error.
//
// The input pump can stay blocked in in.Read after Attach returns; the
// callers here exit right after, so the goroutine never outlives the
// process.
func Attach(ctx context.Context, dev *cdev.Device, in io.Reader, out io.Writer, escape byte) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 2)

	go func() { done <- inputPump(sctx, dev, in, escape) }()
	go func() { done <- outputPump(sctx, dev, out) }()

	err := <-done
	cancel()
	if ctx.Err() != nil {
		return cdev.ErrInterrupted
	}
	if err == nil || errors.Is(err, cdev.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func inputPump(ctx context.Context, dev *cdev.Device, in io.Reader, escape byte) error {
	buf := make([]byte, 1024)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			data, detach := SplitEscape(buf[:n], escape)
			if werr := writeAll(ctx, dev, data); werr != nil {
				return werr
			}
			if detach {
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
}

func outputPump(ctx context.Context, dev *cdev.Device, out io.Writer) error {
	for {
		data, err := dev.Read(ctx, 4096, false)
		if err != nil {
			if errors.Is(err, cdev.ErrInterrupted) && ctx.Err() != nil {
				// The session ended from the other side.
				return nil
			}
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
}

// writeAll resubmits after short writes until the device takes all of p.
func writeAll(ctx context.Context, dev *cdev.Device, p []byte) error {
	for len(p) > 0 {
		n, err := dev.Write(ctx, p, false)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
