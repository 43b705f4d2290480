// Package probe checks that the vehicle can reach the outside network
// before provisioning starts.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/shell"
)

var ErrUnreachable = errors.New("network unreachable")

// Prober reports whether the network is reachable.
type Prober interface {
	Check(ctx context.Context) error
}

// Ping probes reachability with a single ICMP echo through the system
// ping binary, bounded by Timeout.
type Ping struct {
	Runner  shell.Runner
	Address string
	Timeout time.Duration
}

var _ Prober = Ping{}

func (p Ping) Check(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	secs := int(math.Ceil(p.Timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	// the extra second leaves ping room to report before the context expires
	ctx, cancel := context.WithTimeout(ctx, time.Duration(secs+1)*time.Second)
	defer cancel()

	logger.Info("checking connectivity", "address", p.Address, "timeout", p.Timeout)
	if _, err := p.Runner.Run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), p.Address); err != nil {
		return fmt.Errorf("%w: %s did not answer: %v", ErrUnreachable, p.Address, err)
	}
	return nil
}
