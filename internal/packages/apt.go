// Package packages installs the debugging and runtime packages the
// companion computer needs.
package packages

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/shell"
)

var (
	ErrIndexRefresh = errors.New("could not refresh package index")
	ErrInstall      = errors.New("could not install packages")
)

// Installer installs a list of OS packages.
type Installer interface {
	Install(ctx context.Context, pkgs []string) error
}

// Apt installs packages with apt-get. When Sudo is set, every invocation
// is prefixed with sudo.
type Apt struct {
	Runner shell.Runner
	Sudo   bool
}

var _ Installer = Apt{}

// Install refreshes the index and installs pkgs non-interactively. There is
// no rollback when installation fails part way through.
func (a Apt) Install(ctx context.Context, pkgs []string) error {
	logger := logr.FromContextOrDiscard(ctx)

	if len(pkgs) == 0 {
		logger.Info("no packages requested")
		return nil
	}

	logger.Info("refreshing package index")
	if _, err := a.run(ctx, "update"); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexRefresh, err)
	}

	logger.Info("installing packages", "packages", pkgs)
	args := append([]string{"install", "-y"}, pkgs...)
	if report, err := a.run(ctx, args...); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrInstall, err, report.Stderr)
	}
	return nil
}

func (a Apt) run(ctx context.Context, args ...string) (*shell.Output, error) {
	if a.Sudo {
		return a.Runner.Run(ctx, "sudo", append([]string{"apt-get"}, args...)...)
	}
	return a.Runner.Run(ctx, "apt-get", args...)
}
