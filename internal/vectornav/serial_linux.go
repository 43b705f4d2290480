package vectornav

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Port is a serial port configured for the VN100: 115200 baud, 8N1, raw
// mode with RTS/CTS flow control.
type Port struct {
	f *os.File
}

// OpenPort opens and configures the serial device at dev.
func OpenPort(dev string) (*Port, error) {
	f, err := os.OpenFile(dev, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", dev, err)
	}
	p := &Port{f: f}
	fd := int(f.Fd())

	opts, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not read settings of %s: %w", dev, err)
	}

	opts.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.INPCK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	opts.Oflag &^= unix.OPOST
	opts.Lflag &^= unix.ISIG | unix.ICANON | unix.IEXTEN | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL
	opts.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	opts.Cflag |= unix.CREAD | unix.CLOCAL | unix.CS8 | unix.CRTSCTS | unix.B115200
	opts.Ispeed = unix.B115200
	opts.Ospeed = unix.B115200

	for i := range opts.Cc {
		opts.Cc[i] = 0
	}
	// blocking reads of at least one byte
	opts.Cc[unix.VMIN] = 1

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, opts); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not configure %s: %w", dev, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not configure %s: %w", dev, err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not flush %s: %w", dev, err)
	}
	return p, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Close() error                { return p.f.Close() }
