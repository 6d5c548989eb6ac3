//go:build unix

package cdev

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Errno maps a device error to the POSIX errno a kernel driver would
// return for the same condition. The boolean is false for errors outside
// the device taxonomy.
func Errno(err error) (int, bool) {
	switch {
	case errors.Is(err, ErrWouldBlock):
		return int(unix.EAGAIN), true
	case errors.Is(err, ErrInterrupted):
		return int(unix.EINTR), true
	case errors.Is(err, ErrInvalidArgument):
		return int(unix.EINVAL), true
	case errors.Is(err, ErrPermissionDenied):
		return int(unix.EPERM), true
	case errors.Is(err, ErrUnsupportedCommand):
		return int(unix.ENOTTY), true
	case errors.Is(err, ErrFault):
		return int(unix.EFAULT), true
	case errors.Is(err, ErrClosed):
		return int(unix.EBADF), true
	case errors.Is(err, ErrNoDevice):
		return int(unix.ENODEV), true
	default:
		return 0, false
	}
}
