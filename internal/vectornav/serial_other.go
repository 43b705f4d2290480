//go:build !linux

package vectornav

import (
	"errors"
	"fmt"
)

var errUnsupported = errors.New("serial ports are only supported on linux")

type Port struct{}

func OpenPort(dev string) (*Port, error) {
	return nil, fmt.Errorf("could not open %s: %w", dev, errUnsupported)
}

func (p *Port) Read([]byte) (int, error)  { return 0, errUnsupported }
func (p *Port) Write([]byte) (int, error) { return 0, errUnsupported }
func (p *Port) Close() error              { return nil }
