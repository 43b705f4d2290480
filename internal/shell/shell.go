// Package shell runs the external programs rovprep delegates to: the
// package manager, the reachability probe and the calibration helper.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/log"
)

var ErrCommandFailed = errors.New("command failed")

// Output holds the outcome of a captured command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Streams are the standard streams handed to an attached command.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Runner executes external commands and blocks until they exit.
type Runner interface {
	// Run executes name with args and captures its output. A non-zero exit
	// is returned as an error wrapping ErrCommandFailed alongside the output.
	Run(ctx context.Context, name string, args ...string) (*Output, error)
	// RunAttached executes name with args connected to streams, for
	// interactive programs.
	RunAttached(ctx context.Context, streams Streams, name string, args ...string) error
}

// ExecRunner is a Runner backed by os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*Output, error) {
	logger := logr.FromContextOrDiscard(ctx)
	logger.V(log.DBG).Info("running command", "command", commandLine(name, args))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	report := &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		report.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		logger.V(log.TRC).Info("command output", "stdout", report.Stdout, "stderr", report.Stderr)
		return report, fmt.Errorf("%w: %s: %v", ErrCommandFailed, commandLine(name, args), err)
	}
	return report, nil
}

func (ExecRunner) RunAttached(ctx context.Context, streams Streams, name string, args ...string) error {
	logger := logr.FromContextOrDiscard(ctx)
	logger.V(log.DBG).Info("running attached command", "command", commandLine(name, args))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = streams.In
	cmd.Stdout = streams.Out
	cmd.Stderr = streams.Err
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, commandLine(name, args), err)
	}
	return nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
