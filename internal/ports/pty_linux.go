//go:build linux

package ports

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// NewPty allocates a pseudo-terminal pair and returns a Stream backend on
// the master side plus the slave path other programs can open to talk to
// the device.
func NewPty() (*Stream, string, error) {
	masterFD, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	ptn, err := unix.IoctlGetInt(masterFD, unix.TIOCGPTN)
	if err != nil {
		unix.Close(masterFD)
		return nil, "", fmt.Errorf("query pty number: %w", err)
	}
	if err := unix.IoctlSetPointerInt(masterFD, unix.TIOCSPTLCK, 0); err != nil {
		unix.Close(masterFD)
		return nil, "", fmt.Errorf("unlock pty: %w", err)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", ptn)
	slave, err := os.OpenFile(slavePath, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		unix.Close(masterFD)
		return nil, "", fmt.Errorf("open %s: %w", slavePath, err)
	}

	pair := &ptyPair{
		master: os.NewFile(uintptr(masterFD), "ptmx"),
		slave:  slave,
	}
	return NewStream("pty", pair), slavePath, nil
}
