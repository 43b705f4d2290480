// Package registry authenticates against the container registry and
// persists the credential where the docker CLI and daemon look for it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/types"
	"github.com/go-logr/logr"
	craneauthn "github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/bluerov-ops/rovprep/internal/log"
)

var (
	ErrLoginFailed  = errors.New("registry login failed")
	ErrUnauthorized = errors.New("registry rejected the credential")
)

// dockerHubKey is the config key docker uses for Docker Hub logins.
const dockerHubKey = "https://index.docker.io/v1/"

// CredentialStore is the docker CLI config directory. The zero value uses
// the docker default (~/.docker).
type CredentialStore struct {
	Dir string
}

func (s CredentialStore) dir() string {
	if s.Dir == "" {
		return config.Dir()
	}
	return s.Dir
}

// Save records username and token for host, as docker login does.
func (s CredentialStore) Save(host, username, token string) error {
	cf, err := config.Load(s.dir())
	if err != nil {
		return fmt.Errorf("could not load docker config from %s: %w", s.dir(), err)
	}
	key := serverKey(host)
	err = cf.GetCredentialsStore(key).Store(types.AuthConfig{
		Username:      username,
		Password:      token,
		ServerAddress: key,
	})
	if err != nil {
		return fmt.Errorf("could not store credential for %s: %w", host, err)
	}
	return nil
}

// Lookup returns the stored credential for host. A missing entry yields
// an empty AuthConfig.
func (s CredentialStore) Lookup(host string) (types.AuthConfig, error) {
	cf, err := config.Load(s.dir())
	if err != nil {
		return types.AuthConfig{}, fmt.Errorf("could not load docker config from %s: %w", s.dir(), err)
	}
	cfg, err := cf.GetAuthConfig(serverKey(host))
	if err != nil {
		return types.AuthConfig{}, fmt.Errorf("could not read credential for %s: %w", host, err)
	}
	return cfg, nil
}

func serverKey(host string) string {
	switch host {
	case "docker.io", name.DefaultRegistry:
		return dockerHubKey
	}
	return host
}

// Client logs into a registry.
type Client struct {
	Store CredentialStore
	// Repository, when it lives on the registry being logged into, narrows
	// the token scope requested during verification to pull on it.
	Repository string
	// Transport defaults to remote.DefaultTransport.
	Transport http.RoundTripper
	Insecure  bool
}

// Login verifies username and token against host and, once the registry
// accepts them, saves them to the credential store. Nothing is saved for a
// rejected credential.
func (c *Client) Login(ctx context.Context, host, username, token string) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("registry", host, "username", username)

	if err := c.verify(ctx, host, username, token); err != nil {
		return err
	}
	logger.V(log.DBG).Info("registry accepted credential")

	if err := c.Store.Save(host, username, token); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	logger.Info("login succeeded")
	return nil
}

func (c *Client) verify(ctx context.Context, host, username, token string) error {
	var opts []name.Option
	if c.Insecure {
		opts = append(opts, name.Insecure)
	}
	reg, err := name.NewRegistry(host, opts...)
	if err != nil {
		return fmt.Errorf("%w: invalid registry %q: %v", ErrLoginFailed, host, err)
	}

	scope := reg.Scope(transport.PullScope)
	if c.Repository != "" {
		if repo, err := name.NewRepository(c.Repository, opts...); err == nil && repo.RegistryStr() == reg.RegistryStr() {
			scope = repo.Scope(transport.PullScope)
		}
	}

	base := c.Transport
	if base == nil {
		base = remote.DefaultTransport
	}

	auth := craneauthn.FromConfig(craneauthn.AuthConfig{Username: username, Password: token})
	rt, err := transport.NewWithContext(ctx, reg, auth, base, []string{scope})
	if err != nil {
		return classify(err)
	}

	// basic-auth registries only see the credential on an authenticated request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s://%s/v2/", reg.Scheme(), reg.RegistryStr()), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	resp, err := (&http.Client{Transport: rt}).Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %s", ErrUnauthorized, host, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s returned %s", ErrLoginFailed, host, resp.Status)
	}
	return nil
}

func classify(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) &&
		(terr.StatusCode == http.StatusUnauthorized || terr.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if strings.Contains(err.Error(), "UNAUTHORIZED") {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %v", ErrLoginFailed, err)
}
