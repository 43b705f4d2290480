// Package option builds the crane options shared by every registry
// operation rovprep performs.
package option

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/google/go-containerregistry/pkg/crane"
	cranev1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/bluerov-ops/rovprep/internal/authn"
)

type CraneConfig interface {
	CraneDockerConfig() string
	CranePlatform() string
	CraneInsecure() bool
}

func GenerateCraneOptions(ctx context.Context, craneConfig CraneConfig) []crane.Option {
	options := []crane.Option{
		crane.WithContext(ctx),
		crane.WithAuthFromKeychain(authn.NewKeychain(ctx, craneConfig.CraneDockerConfig())),
		retryOnceAfter(5 * time.Second),
	}

	// The companion computer is an arm64 board; an empty platform lets the
	// registry pick the index default.
	if arch := craneConfig.CranePlatform(); arch != "" {
		options = append(options, crane.WithPlatform(&cranev1.Platform{
			OS:           "linux",
			Architecture: arch,
		}))
	}

	if craneConfig.CraneInsecure() {
		// self-signed registries on the tether network
		rt := remote.DefaultTransport.(*http.Transport).Clone()
		rt.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint: gosec
		}

		options = append(options, crane.Insecure, crane.WithTransport(rt))
	}

	return options
}

// retryOnceAfter is a crane option that retries once after t duration.
func retryOnceAfter(t time.Duration) crane.Option {
	return func(o *crane.Options) {
		o.Remote = append(o.Remote, remote.WithRetryBackoff(remote.Backoff{
			Duration: t,
			Factor:   1.0,
			Jitter:   0.1,
			Steps:    2,
		}))
	}
}
