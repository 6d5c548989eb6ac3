package cdev

import "errors"

// Errors surfaced by channels and dispatchers. All are returned, never
// panicked; WouldBlock and Interrupted are retryable, the rest report a
// caller mistake and leave device state untouched.
var (
	// ErrWouldBlock means a non-blocking operation could not proceed
	// immediately.
	ErrWouldBlock = errors.New("chardev: operation would block")

	// ErrInterrupted means the caller's context fired while the
	// operation was suspended. Nothing was consumed or produced.
	ErrInterrupted = errors.New("chardev: interrupted")

	// ErrInvalidArgument means the request itself was malformed.
	ErrInvalidArgument = errors.New("chardev: invalid argument")

	// ErrPermissionDenied means the caller lacks the capability a
	// privileged command requires.
	ErrPermissionDenied = errors.New("chardev: permission denied")

	// ErrUnsupportedCommand means the command does not belong to the
	// device's registered family.
	ErrUnsupportedCommand = errors.New("chardev: inappropriate command for device")

	// ErrFault means a pointer-style command arrived without a usable
	// payload buffer.
	ErrFault = errors.New("chardev: bad payload address")

	// ErrClosed means the device was closed underneath the caller.
	ErrClosed = errors.New("chardev: device closed")

	// ErrNoDevice means the registry holds nothing under the requested
	// name.
	ErrNoDevice = errors.New("chardev: no such device")
)
