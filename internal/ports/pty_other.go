//go:build !linux && !darwin

package ports

import "errors"

// NewPty reports that pseudo-terminals are unavailable on this platform.
func NewPty() (*Stream, string, error) {
	return nil, "", errors.New("pty backend is only implemented on linux and darwin")
}
