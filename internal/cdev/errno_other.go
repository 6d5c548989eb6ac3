//go:build !unix

package cdev

// Errno has no POSIX numbers to map to on this platform.
func Errno(err error) (int, bool) {
	return 0, false
}
