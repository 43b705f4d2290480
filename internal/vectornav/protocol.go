// Package vectornav talks to a VectorNav VN100 IMU over its ASCII serial
// protocol and drives the on-sensor hard/soft-iron (HSI) calibration.
//
// A frame is "$" + payload + "*" + checksum + "\r\n", where the payload is
// a comma separated message and the checksum is the 8-bit XOR of the
// payload bytes in two uppercase hex digits.
package vectornav

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmpty     = errors.New("empty message")
	ErrMalformed = errors.New("malformed message")
	ErrChecksum  = errors.New("checksum mismatch")
)

const (
	TypeReadRegister  = "VNRRG"
	TypeWriteRegister = "VNWRG"
	TypeError         = "VNERR"

	// RegisterHSI holds the magnetometer compensation: a 3x3 C matrix in
	// row-major order followed by the B vector.
	RegisterHSI = 47
)

// Commands sent during calibration.
const (
	CmdAsyncOff   = "VNWRG,07,0,1"
	CmdReadHSI    = "VNRRG,47"
	CmdStopApply  = "VNWRG,44,0,3,1"
	CmdAsync40Hz  = "VNWRG,7,40,1"
	CmdWriteFlash = "VNWNV"
)

// CmdStartHSI starts onboard HSI estimation at the given convergence rate.
func CmdStartHSI(rate int) string {
	return fmt.Sprintf("VNWRG,44,1,1,%d", rate)
}

// Checksum returns the XOR checksum of payload as two uppercase hex digits.
func Checksum(payload string) string {
	var x byte
	for i := 0; i < len(payload); i++ {
		x ^= payload[i]
	}
	return fmt.Sprintf("%02X", x)
}

// Frame renders payload as a complete frame ready to write to the port.
func Frame(payload string) []byte {
	return []byte("$" + payload + "*" + Checksum(payload) + "\r\n")
}

// Message is a parsed frame.
type Message struct {
	Type   string
	Fields []string
}

// Parse decodes one line read from the sensor. A checksum, when present,
// must match.
func Parse(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, ErrEmpty
	}

	payload, sum, hasSum := strings.Cut(strings.TrimPrefix(line, "$"), "*")
	if hasSum && sum != "XX" && !strings.EqualFold(sum, Checksum(payload)) {
		return Message{}, fmt.Errorf("%w: %q: got %s, want %s", ErrChecksum, line, sum, Checksum(payload))
	}

	parts := strings.Split(payload, ",")
	if parts[0] == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	return Message{Type: parts[0], Fields: parts[1:]}, nil
}

// Register returns the register number of a register read or write reply.
func (m Message) Register() (int, bool) {
	if m.Type != TypeReadRegister && m.Type != TypeWriteRegister || len(m.Fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(m.Fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Err returns the sensor error carried by a VNERR message, or nil.
func (m Message) Err() error {
	if m.Type != TypeError {
		return nil
	}
	if len(m.Fields) == 0 {
		return &SensorError{Code: -1}
	}
	code, err := strconv.Atoi(strings.TrimSpace(m.Fields[0]))
	if err != nil {
		return &SensorError{Code: -1}
	}
	return &SensorError{Code: code}
}

// SensorError is an error reported by the sensor.
type SensorError struct {
	Code int
}

var sensorErrors = map[int]string{
	1:   "hard fault",
	2:   "serial buffer overflow",
	3:   "invalid checksum",
	4:   "invalid command",
	5:   "not enough parameters",
	6:   "too many parameters",
	7:   "invalid parameter",
	8:   "invalid register",
	9:   "unauthorized access",
	10:  "watchdog reset",
	11:  "output buffer overflow",
	12:  "insufficient baud rate",
	255: "error buffer overflow",
}

func (e *SensorError) Error() string {
	if desc, ok := sensorErrors[e.Code]; ok {
		return fmt.Sprintf("vn100 error %d: %s", e.Code, desc)
	}
	return fmt.Sprintf("vn100 error %d", e.Code)
}

// HSI is the content of the HSI register.
type HSI struct {
	C [9]float64
	B [3]float64
}

// ParseHSI decodes a register 47 read reply.
func ParseHSI(m Message) (HSI, error) {
	var h HSI
	if reg, ok := m.Register(); !ok || m.Type != TypeReadRegister || reg != RegisterHSI {
		return h, fmt.Errorf("%w: not a register %d reply", ErrMalformed, RegisterHSI)
	}
	if len(m.Fields) < 13 {
		return h, fmt.Errorf("%w: register %d reply has %d values, want 12", ErrMalformed, RegisterHSI, len(m.Fields)-1)
	}

	values := m.Fields[1:13]
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return h, fmt.Errorf("%w: value %d of register %d: %v", ErrMalformed, i, RegisterHSI, err)
		}
		if i < 9 {
			h.C[i] = f
		} else {
			h.B[i-9] = f
		}
	}
	return h, nil
}

func (h HSI) String() string {
	var b strings.Builder
	for r := 0; r < 3; r++ {
		prefix := "    "
		if r == 0 {
			prefix = "C = "
		}
		fmt.Fprintf(&b, "%s[%+.4f, %+.4f, %+.4f]\n", prefix, h.C[r*3], h.C[r*3+1], h.C[r*3+2])
	}
	fmt.Fprintf(&b, "B = [%+.4f, %+.4f, %+.4f]", h.B[0], h.B[1], h.B[2])
	return b.String()
}
