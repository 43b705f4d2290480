// Package engine drives the container runtime on the companion computer:
// it pulls the robot software image into the local Docker daemon.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blang/semver"
	clitypes "github.com/docker/cli/cli/config/types"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bluerov-ops/rovprep/internal/log"
	"github.com/bluerov-ops/rovprep/internal/option"
)

var (
	ErrPullFailed    = errors.New("image pull failed")
	ErrEngineTooOld  = errors.New("container engine is older than required")
	ErrEngineVersion = errors.New("could not determine container engine version")
)

// API is the subset of the Docker Engine API used by Engine. It is
// satisfied by *client.Client.
type API interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ServerVersion(ctx context.Context) (types.Version, error)
}

// CredentialSource returns the stored registry credential for a host.
type CredentialSource interface {
	Lookup(host string) (clitypes.AuthConfig, error)
}

// DigestFunc resolves the remote digest of a reference. crane.Digest
// satisfies it.
type DigestFunc func(ref string, opts ...crane.Option) (string, error)

// PullReport describes a completed pull.
type PullReport struct {
	Reference string
	Digest    string
}

// Engine pulls images through the Docker daemon.
type Engine struct {
	api       API
	creds     CredentialSource
	digest    DigestFunc
	craneOpts []crane.Option
	out       io.Writer
	closer    io.Closer
}

type Option func(*Engine)

// WithAPI replaces the Docker client.
func WithAPI(api API) Option {
	return func(e *Engine) {
		e.api = api
	}
}

// WithDigestFunc replaces remote digest resolution.
func WithDigestFunc(fn DigestFunc) Option {
	return func(e *Engine) {
		e.digest = fn
	}
}

// New returns an Engine talking to the daemon configured by the DOCKER_*
// environment. Pull progress is written to out.
func New(ctx context.Context, cfg option.CraneConfig, creds CredentialSource, out io.Writer, opts ...Option) (*Engine, error) {
	e := &Engine{
		creds:     creds,
		digest:    crane.Digest,
		craneOpts: option.GenerateCraneOptions(ctx, cfg),
		out:       out,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.api == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		e.api = cli
		e.closer = cli
	}
	if e.out == nil {
		e.out = io.Discard
	}
	return e, nil
}

// Close releases the Docker client, if Engine created it.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// Pull pulls ref into the daemon, authenticating with the stored
// credential for its registry. The image is pulled on every call; the tag
// is the only version pin.
func (e *Engine) Pull(ctx context.Context, ref string) (PullReport, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("image", ref)
	report := PullReport{Reference: ref}

	reference, err := name.ParseReference(ref)
	if err != nil {
		return report, fmt.Errorf("%w: image reference could not be parsed: %v", ErrPullFailed, err)
	}

	// the digest is informational; the daemon pull below is authoritative
	if digest, err := e.digest(ref, e.craneOpts...); err != nil {
		logger.V(log.DBG).Info("could not resolve remote digest", "reason", err.Error())
	} else {
		report.Digest = digest
		logger.Info("resolved remote digest", "digest", digest)
	}

	auth, err := e.registryAuth(reference.Context().RegistryStr())
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPullFailed, err)
	}

	logger.Info("pulling image")
	rc, err := e.api.ImagePull(ctx, reference.Name(), image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPullFailed, err)
	}
	defer rc.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(rc, e.out, 0, false, nil); err != nil {
		return report, fmt.Errorf("%w: %v", ErrPullFailed, err)
	}
	return report, nil
}

func (e *Engine) registryAuth(host string) (string, error) {
	if e.creds == nil {
		return "", nil
	}
	cfg, err := e.creds.Lookup(host)
	if err != nil {
		return "", err
	}
	if cfg.Username == "" && cfg.Password == "" && cfg.IdentityToken == "" {
		return "", nil
	}
	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      cfg.Username,
		Password:      cfg.Password,
		ServerAddress: host,
		IdentityToken: cfg.IdentityToken,
	})
}

// CheckVersion returns ErrEngineTooOld when the daemon version is below
// minimum. Versions are compared as semver; distribution suffixes such as
// "+dfsg1" and zero-padded components such as "19.03" are tolerated.
func (e *Engine) CheckVersion(ctx context.Context, minimum string) error {
	if minimum == "" {
		return nil
	}
	want, err := parseVersion(minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum engine version %q: %w", minimum, err)
	}

	v, err := e.api.ServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineVersion, err)
	}
	got, err := parseVersion(v.Version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrEngineVersion, v.Version, err)
	}

	logr.FromContextOrDiscard(ctx).V(log.DBG).Info("container engine version", "version", got.String())
	if got.LT(want) {
		return fmt.Errorf("%w: have %s, need %s", ErrEngineTooOld, got, want)
	}
	return nil
}

func parseVersion(v string) (semver.Version, error) {
	core, suffix := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}
	parts := strings.Split(core, ".")
	for i, part := range parts {
		if trimmed := strings.TrimLeft(part, "0"); trimmed != "" {
			parts[i] = trimmed
		} else if part != "" {
			parts[i] = "0"
		}
	}
	return semver.ParseTolerant(strings.Join(parts, ".") + suffix)
}
