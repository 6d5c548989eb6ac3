//go:build linux || darwin

package ports

import "os"

// ptyPair keeps both ends of a pseudo-terminal open. Holding our own
// slave descriptor stops the master from erroring out between client
// connections; both close together when the backend stops.
type ptyPair struct {
	master *os.File
	slave  *os.File
}

func (p *ptyPair) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *ptyPair) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

func (p *ptyPair) Close() error {
	if p.slave != nil {
		p.slave.Close()
	}
	return p.master.Close()
}
