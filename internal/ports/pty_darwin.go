//go:build darwin

package ports

import (
	"fmt"
	"os"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var (
	ptyInitOnce sync.Once
	ptyInitErr  error

	openptyFn func(master, slave *int32, name *byte, termp *unix.Termios, winp *unix.Winsize) int32
)

func ensurePty() error {
	ptyInitOnce.Do(func() {
		libSystem, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_GLOBAL)
		if err != nil {
			ptyInitErr = err
			return
		}
		purego.RegisterLibFunc(&openptyFn, libSystem, "openpty")
	})
	return ptyInitErr
}

// NewPty allocates a pseudo-terminal pair and returns a Stream backend on
// the master side plus the slave path other programs can open to talk to
// the device.
func NewPty() (*Stream, string, error) {
	if err := ensurePty(); err != nil {
		return nil, "", fmt.Errorf("load openpty: %w", err)
	}

	var masterFD, slaveFD int32
	var nameBuf [128]byte
	if rc := openptyFn(&masterFD, &slaveFD, &nameBuf[0], nil, nil); rc != 0 {
		return nil, "", fmt.Errorf("openpty failed: %d", rc)
	}

	slavePath := cString(nameBuf[:])
	pair := &ptyPair{
		master: os.NewFile(uintptr(masterFD), "ptmx"),
		slave:  os.NewFile(uintptr(slaveFD), slavePath),
	}
	return NewStream("pty", pair), slavePath, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
