package authn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/types"
	"github.com/go-logr/logr"
	craneauthn "github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bluerov-ops/rovprep/internal/log"
)

// Keychain resolves registry credentials from the docker CLI config
// directory that rovprep logs into. It implements craneauthn.Keychain.
type Keychain struct {
	configDir string
	ctx       context.Context
}

var _ craneauthn.Keychain = &Keychain{}

// NewKeychain returns a Keychain reading config.json from configDir. An
// empty configDir means the docker CLI default (~/.docker).
func NewKeychain(ctx context.Context, configDir string) *Keychain {
	if configDir == "" {
		configDir = config.Dir()
	}
	return &Keychain{configDir: configDir, ctx: ctx}
}

// ConfigFile is the path of the docker config consulted by Resolve.
func (k *Keychain) ConfigFile() string {
	return filepath.Join(k.configDir, config.ConfigFileName)
}

// Resolve returns an Authenticator with credentials, or Anonymous if no
// suitable credentials are found for the target. A vehicle that has never
// logged in has no config file at all, which also resolves to Anonymous.
// A config file that exists but cannot be read or parsed is an error.
func (k *Keychain) Resolve(target craneauthn.Resource) (craneauthn.Authenticator, error) {
	logger := logr.FromContextOrDiscard(k.ctx)
	logger.V(log.TRC).Info("resolving registry credentials", "target", target.String(), "config", k.ConfigFile())

	r, err := os.Open(k.ConfigFile())
	if errors.Is(err, os.ErrNotExist) {
		return craneauthn.Anonymous, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open docker config: %s: %v", k.ConfigFile(), err)
	}
	defer r.Close()

	cf, err := config.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not load docker config from reader: %v", err)
	}

	// Credentials may be stored per repository or per registry.
	authFileTargets := []string{
		target.String(),
		target.RegistryStr(),
	}

	// A login against docker.io is stored under that name, while crane
	// addresses the registry as index.docker.io.
	if strings.Contains(name.DefaultRegistry, target.RegistryStr()) {
		authFileTargets = append(authFileTargets,
			strings.Replace(target.String(), name.DefaultRegistry, "docker.io", 1),
			strings.Replace(target.RegistryStr(), name.DefaultRegistry, "docker.io", 1),
		)
	}

	var cfg, empty types.AuthConfig
	for _, key := range authFileTargets {
		if key == name.DefaultRegistry {
			key = craneauthn.DefaultAuthKey
		}

		cfg, err = cf.GetAuthConfig(key)
		if err != nil {
			return nil, fmt.Errorf("could not get auth config: %v", err)
		}
		if cfg != empty {
			break
		}
	}
	if cfg == empty {
		return craneauthn.Anonymous, nil
	}

	return craneauthn.FromConfig(craneauthn.AuthConfig{
		Username:      cfg.Username,
		Password:      cfg.Password,
		Auth:          cfg.Auth,
		IdentityToken: cfg.IdentityToken,
		RegistryToken: cfg.RegistryToken,
	}), nil
}
