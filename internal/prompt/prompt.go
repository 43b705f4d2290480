// Package prompt reads interactive answers from the operator. Every read is
// a blocking line read from standard input.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Choice is the interpretation of a y/n answer.
type Choice int

const (
	Invalid Choice = iota
	Yes
	No
)

func (c Choice) String() string {
	switch c {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "invalid"
	}
}

// ParseChoice maps y/Y to Yes, n/N to No and anything else to Invalid.
func ParseChoice(answer string) Choice {
	switch strings.TrimSpace(answer) {
	case "y", "Y":
		return Yes
	case "n", "N":
		return No
	default:
		return Invalid
	}
}

// Prompter asks the operator for input.
type Prompter interface {
	// Ask prints label and returns the trimmed answer.
	Ask(label string) (string, error)
	// AskSecret is Ask without echoing the answer when possible.
	AskSecret(label string) (string, error)
	// Confirm asks a y/n question.
	Confirm(label string) (Choice, error)
}

// Terminal is a Prompter over an input stream. When the input is a
// terminal, secrets are read with echo disabled.
type Terminal struct {
	in       *bufio.Reader
	out      io.Writer
	fd       int
	terminal bool

	readPassword func(fd int) ([]byte, error)
}

var _ Prompter = &Terminal{}

// New returns a Terminal reading from in and writing labels to out.
func New(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		in:           bufio.NewReader(in),
		out:          out,
		fd:           -1,
		readPassword: term.ReadPassword,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.terminal = true
	}
	return t
}

func (t *Terminal) Ask(label string) (string, error) {
	fmt.Fprint(t.out, label)
	return t.readLine()
}

func (t *Terminal) AskSecret(label string) (string, error) {
	// buffered input means the answer was typed ahead; consume it normally
	if !t.terminal || t.in.Buffered() > 0 {
		return t.Ask(label)
	}

	fmt.Fprint(t.out, label)
	b, err := t.readPassword(t.fd)
	fmt.Fprintln(t.out)
	if err != nil {
		return "", fmt.Errorf("could not read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (t *Terminal) Confirm(label string) (Choice, error) {
	answer, err := t.Ask(label)
	if err != nil {
		return Invalid, err
	}
	return ParseChoice(answer), nil
}

// readLine returns the next line. End of input counts as an empty answer
// so a closed stdin cannot stall a run.
func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("could not read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
