// Package credential stores the container-registry token in the shell
// profile and logs in to the registry with it.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/log"
	"github.com/bluerov-ops/rovprep/internal/profile"
	"github.com/bluerov-ops/rovprep/internal/prompt"
)

var (
	ErrEmptyToken    = errors.New("no token was provided")
	ErrEmptyUsername = errors.New("no username was provided")
	ErrInvalidChoice = errors.New("invalid choice, expected y or n")
)

// Action is what Provision did with the stored credential.
type Action int

const (
	Added Action = iota
	Replaced
	Kept
)

func (a Action) String() string {
	switch a {
	case Replaced:
		return "replaced"
	case Kept:
		return "kept"
	default:
		return "added"
	}
}

// Credential is the username and token a login was attempted with.
type Credential struct {
	Username string
	Token    string
	Action   Action
}

// String never includes the token.
func (c Credential) String() string {
	return fmt.Sprintf("%s credential for %q", c.Action, c.Username)
}

// LoginError reports a registry login that failed after the credential was
// stored. It does not stop provisioning.
type LoginError struct {
	Host string
	Err  error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login to %s failed: %v", e.Host, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Loginer authenticates against a registry.
type Loginer interface {
	Login(ctx context.Context, host, username, token string) error
}

type Config struct {
	// Var is the exported variable holding the token, for example CR_PAT.
	Var string
	// Registry is the host logged in to.
	Registry string
	// CollectUsername prompts for a username. When false, Username is used.
	CollectUsername bool
	Username        string
}

type Provisioner struct {
	cfg     Config
	profile *profile.Profile
	prompt  prompt.Prompter
	login   Loginer
	setenv  func(key, value string) error
	getenv  func(key string) string
}

// NewProvisioner returns a Provisioner editing p. setenv and getenv are
// the process environment accessors, usually os.Setenv and os.Getenv.
func NewProvisioner(cfg Config, p *profile.Profile, pr prompt.Prompter, l Loginer, setenv func(string, string) error, getenv func(string) string) *Provisioner {
	return &Provisioner{
		cfg:     cfg,
		profile: p,
		prompt:  pr,
		login:   l,
		setenv:  setenv,
		getenv:  getenv,
	}
}

// Provision makes sure the profile holds a credential and logs in with it.
//
// Without a stored credential the operator is asked for one, which is
// appended. With one, the operator chooses to replace it (the previous
// profile is backed up) or keep it, in which case the stored token is
// expanded as the shell would and only that variable is exported. Empty
// input and invalid choices are returned before the profile is touched. A
// failed login is returned as a *LoginError.
func (p *Provisioner) Provision(ctx context.Context) (Credential, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("variable", p.cfg.Var)

	if !p.profile.HasExport(p.cfg.Var) {
		logger.V(log.DBG).Info("no stored credential")
		cred, err := p.ask()
		if err != nil {
			return cred, err
		}
		cred.Action = Added
		return p.store(ctx, cred)
	}

	choice, err := p.prompt.Confirm(fmt.Sprintf("%s is already set in %s. Replace it? (y/n): ", p.cfg.Var, p.profile.Path()))
	if err != nil {
		return Credential{}, err
	}

	switch choice {
	case prompt.Yes:
		cred, err := p.ask()
		if err != nil {
			return cred, err
		}
		cred.Action = Replaced
		return p.store(ctx, cred)
	case prompt.No:
		token, _ := p.profile.Resolve(p.cfg.Var, p.getenv)
		if err := p.setenv(p.cfg.Var, token); err != nil {
			return Credential{}, fmt.Errorf("could not set %s: %w", p.cfg.Var, err)
		}
		username, err := p.username()
		if err != nil {
			return Credential{}, err
		}
		cred := Credential{Username: username, Token: token, Action: Kept}
		logger.Info("keeping stored credential")
		return cred, p.doLogin(ctx, cred)
	default:
		return Credential{}, ErrInvalidChoice
	}
}

func (p *Provisioner) ask() (Credential, error) {
	username, err := p.username()
	if err != nil {
		return Credential{}, err
	}
	token, err := p.prompt.AskSecret(fmt.Sprintf("Registry token for %s: ", p.cfg.Registry))
	if err != nil {
		return Credential{}, err
	}
	if token == "" {
		return Credential{}, ErrEmptyToken
	}
	return Credential{Username: username, Token: token}, nil
}

func (p *Provisioner) username() (string, error) {
	if !p.cfg.CollectUsername {
		return p.cfg.Username, nil
	}
	username, err := p.prompt.Ask(fmt.Sprintf("Registry username for %s: ", p.cfg.Registry))
	if err != nil {
		return "", err
	}
	if username == "" {
		return "", ErrEmptyUsername
	}
	return username, nil
}

func (p *Provisioner) store(ctx context.Context, cred Credential) (Credential, error) {
	mutation, err := p.profile.SetExport(p.cfg.Var, cred.Token)
	if err != nil {
		return cred, fmt.Errorf("could not store credential: %w", err)
	}
	if err := p.setenv(p.cfg.Var, cred.Token); err != nil {
		return cred, fmt.Errorf("could not set %s: %w", p.cfg.Var, err)
	}
	logr.FromContextOrDiscard(ctx).Info("stored credential", "profile", p.profile.Path(), "mutation", mutation.String())
	return cred, p.doLogin(ctx, cred)
}

func (p *Provisioner) doLogin(ctx context.Context, cred Credential) error {
	if cred.Username == "" {
		return &LoginError{Host: p.cfg.Registry, Err: errors.New("no registry username configured")}
	}
	if err := p.login.Login(ctx, p.cfg.Registry, cred.Username, cred.Token); err != nil {
		return &LoginError{Host: p.cfg.Registry, Err: err}
	}
	return nil
}
