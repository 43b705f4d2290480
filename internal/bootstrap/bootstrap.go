// Package bootstrap provisions the companion computer of the vehicle. An
// Orchestrator runs a fixed sequence of steps, each guarded by a presence
// check or an explicit operator choice, and stops at the first fatal
// failure. Failures that leave the system usable are recorded as warnings
// and the run continues.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/shlex"
	"github.com/spf13/afero"

	"github.com/bluerov-ops/rovprep/internal/credential"
	"github.com/bluerov-ops/rovprep/internal/engine"
	"github.com/bluerov-ops/rovprep/internal/fetch"
	"github.com/bluerov-ops/rovprep/internal/log"
	"github.com/bluerov-ops/rovprep/internal/packages"
	"github.com/bluerov-ops/rovprep/internal/probe"
	"github.com/bluerov-ops/rovprep/internal/profile"
	"github.com/bluerov-ops/rovprep/internal/prompt"
	"github.com/bluerov-ops/rovprep/internal/shell"
)

var (
	ErrNoConnectivity = errors.New("no internet connectivity")
	ErrInvalidChoice  = credential.ErrInvalidChoice
)

const (
	StepProbe             = "probe"
	StepLogo              = "logo"
	StepCredential        = "credential"
	StepPackages          = "packages"
	StepImage             = "image"
	StepCompose           = "compose"
	StepAlias             = "alias"
	StepCalibrationScript = "calibration-script"
	StepCalibration       = "calibration"
)

const (
	LogoFile        = "bluerov-logo.txt"
	ComposeFile     = "docker-compose.yml"
	CalibrationFile = "VN100_HSIEstimator.py"

	// AliasMarker identifies the alias line in the profile.
	AliasMarker = "alias rov="
)

// Config holds the fixed parameters of a run.
type Config struct {
	// Profile is the shell-startup file holding the credential and alias.
	Profile string
	// WorkDir receives the downloaded assets.
	WorkDir      string
	AssetBaseURL string

	Registry         string
	CredentialVar    string
	RegistryUsername string
	Image            string
	MinEngineVersion string
	Packages         []string

	// CalibrationCommand runs the calibration script, for example python3.
	CalibrationCommand string
}

// ImagePuller pulls the robot software image.
type ImagePuller interface {
	Pull(ctx context.Context, ref string) (engine.PullReport, error)
	CheckVersion(ctx context.Context, minimum string) error
}

// AssetFetcher downloads an asset unless it is already present.
type AssetFetcher interface {
	Fetch(ctx context.Context, a fetch.Asset) (fetch.Outcome, error)
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Fs        afero.Fs
	Prober    probe.Prober
	Fetcher   AssetFetcher
	Prompter  prompt.Prompter
	Loginer   credential.Loginer
	Installer packages.Installer
	Images    ImagePuller
	Runner    shell.Runner
	// Streams are handed to the calibration subprocess.
	Streams shell.Streams
	// Out receives operator-facing messages.
	Out    io.Writer
	Setenv func(key, value string) error
	Getenv func(key string) string
}

type Option func(*Orchestrator)

// WithUsernamePrompt controls whether the registry username is asked for.
// When disabled, Config.RegistryUsername is used.
func WithUsernamePrompt(enabled bool) Option {
	return func(o *Orchestrator) {
		o.collectUsername = enabled
	}
}

// WithCalibration controls the calibration stage.
func WithCalibration(enabled bool) Option {
	return func(o *Orchestrator) {
		o.calibration = enabled
	}
}

type Orchestrator struct {
	cfg  Config
	deps Deps

	collectUsername bool
	calibration     bool

	profile *profile.Profile
	now     func() time.Time
}

type step struct {
	name string
	run  func(ctx context.Context) (Status, string, error)
}

// New returns an Orchestrator. The username prompt and the calibration
// stage are enabled unless turned off by opts.
func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:             cfg,
		deps:            deps,
		collectUsername: true,
		calibration:     true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Out == nil {
		o.deps.Out = io.Discard
	}
	return o
}

func (o *Orchestrator) steps() []step {
	steps := []step{
		{StepProbe, o.probe},
		{StepLogo, o.logo},
		{StepCredential, o.credential},
		{StepPackages, o.packages},
		{StepImage, o.image},
		{StepCompose, o.compose},
		{StepAlias, o.alias},
	}
	if o.calibration {
		steps = append(steps,
			step{StepCalibrationScript, o.calibrationScript},
			step{StepCalibration, o.calibrate},
		)
	}
	return steps
}

// Run executes every step in order. It returns the results of the steps
// that ran and, when a step failed fatally, the error that stopped the run.
func (o *Orchestrator) Run(ctx context.Context) (Results, error) {
	logger := logr.FromContextOrDiscard(ctx)
	results := Results{Started: o.now()}

	for _, s := range o.steps() {
		logger.V(log.DBG).Info("running step", "step", s.name)
		start := o.now()
		status, msg, err := s.run(ctx)
		if err != nil {
			status, msg = StatusFailed, err.Error()
		}
		result := StepResult{
			Name:    s.name,
			Status:  status,
			Message: msg,
			Elapsed: o.now().Sub(start),
		}
		results.Steps = append(results.Steps, result)
		o.report(ctx, result)

		if err != nil {
			return results, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	results.Completed = true
	return results, nil
}

func (o *Orchestrator) report(ctx context.Context, r StepResult) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("step", r.Name, "status", r.Status)
	switch r.Status {
	case StatusWarning:
		logger.Info("step finished with a warning", "reason", r.Message)
		fmt.Fprintf(o.deps.Out, "WARNING: %s: %s\n", r.Name, r.Message)
	case StatusFailed:
		logger.Info("step failed", "reason", r.Message)
	default:
		logger.Info("step finished", "message", r.Message)
		if r.Message != "" {
			fmt.Fprintf(o.deps.Out, "%s: %s\n", r.Name, r.Message)
		}
	}
}

func (o *Orchestrator) probe(ctx context.Context) (Status, string, error) {
	if err := o.deps.Prober.Check(ctx); err != nil {
		return StatusFailed, "", fmt.Errorf("%w: check the tether or network cable and try again: %v", ErrNoConnectivity, err)
	}
	return StatusDone, "network reachable", nil
}

// openProfile reads the profile on first use, after the probe has passed.
func (o *Orchestrator) openProfile() (*profile.Profile, error) {
	if o.profile != nil {
		return o.profile, nil
	}
	p, err := profile.Open(o.deps.Fs, o.cfg.Profile)
	if err != nil {
		return nil, err
	}
	o.profile = p
	return p, nil
}

func (o *Orchestrator) asset(name string, validate func([]byte) error) fetch.Asset {
	return fetch.Asset{
		Name:     name,
		URL:      strings.TrimSuffix(o.cfg.AssetBaseURL, "/") + "/" + name,
		Path:     filepath.Join(o.cfg.WorkDir, name),
		Validate: validate,
	}
}

func (o *Orchestrator) fetchAsset(ctx context.Context, a fetch.Asset) (Status, string, error) {
	outcome, err := o.deps.Fetcher.Fetch(ctx, a)
	if err != nil {
		return StatusWarning, err.Error(), nil
	}
	if outcome == fetch.Skipped {
		return StatusSkipped, fmt.Sprintf("%s already present", a.Path), nil
	}
	return StatusDone, fmt.Sprintf("downloaded %s", a.Path), nil
}

// LogoLine is the profile line that renders the logo in new shells.
func LogoLine(path string) string {
	return "cat " + path
}

func (o *Orchestrator) logo(ctx context.Context) (Status, string, error) {
	a := o.asset(LogoFile, fetch.ValidateNonEmpty)
	status, msg, err := o.fetchAsset(ctx, a)
	if status == StatusWarning || err != nil {
		return status, msg, err
	}

	p, err := o.openProfile()
	if err != nil {
		return StatusWarning, err.Error(), nil
	}
	added, err := p.AppendOnce(LogoLine(a.Path), LogoLine(a.Path))
	if err != nil {
		return StatusWarning, err.Error(), nil
	}
	if added {
		msg += fmt.Sprintf("; %s renders it in new shells", p.Path())
		return StatusDone, msg, nil
	}
	return status, msg, nil
}

func (o *Orchestrator) credential(ctx context.Context) (Status, string, error) {
	p, err := o.openProfile()
	if err != nil {
		return StatusFailed, "", err
	}

	prov := credential.NewProvisioner(credential.Config{
		Var:             o.cfg.CredentialVar,
		Registry:        o.cfg.Registry,
		CollectUsername: o.collectUsername,
		Username:        o.cfg.RegistryUsername,
	}, p, o.deps.Prompter, o.deps.Loginer, o.deps.Setenv, o.deps.Getenv)

	cred, err := prov.Provision(ctx)
	var loginErr *credential.LoginError
	switch {
	case errors.As(err, &loginErr):
		return StatusWarning, fmt.Sprintf("%s; %v", cred, loginErr), nil
	case err != nil:
		return StatusFailed, "", err
	}
	return StatusDone, fmt.Sprintf("%s; logged in to %s", cred, o.cfg.Registry), nil
}

func (o *Orchestrator) packages(ctx context.Context) (Status, string, error) {
	if len(o.cfg.Packages) == 0 {
		return StatusSkipped, "no packages configured", nil
	}
	if err := o.deps.Installer.Install(ctx, o.cfg.Packages); err != nil {
		return StatusWarning, err.Error(), nil
	}
	return StatusDone, fmt.Sprintf("installed %s", strings.Join(o.cfg.Packages, " ")), nil
}

func (o *Orchestrator) image(ctx context.Context) (Status, string, error) {
	var notes []string
	if err := o.deps.Images.CheckVersion(ctx, o.cfg.MinEngineVersion); err != nil {
		notes = append(notes, err.Error())
	}

	report, err := o.deps.Images.Pull(ctx, o.cfg.Image)
	if err != nil {
		notes = append(notes, err.Error())
		return StatusWarning, strings.Join(notes, "; "), nil
	}

	msg := fmt.Sprintf("pulled %s", report.Reference)
	if report.Digest != "" {
		msg += "@" + report.Digest
	}
	if len(notes) > 0 {
		return StatusWarning, msg + "; " + strings.Join(notes, "; "), nil
	}
	return StatusDone, msg, nil
}

func (o *Orchestrator) compose(ctx context.Context) (Status, string, error) {
	return o.fetchAsset(ctx, o.asset(ComposeFile, fetch.ValidateCompose))
}

// AliasLine is the profile line defining the rov alias.
func AliasLine(composePath string) string {
	return fmt.Sprintf(`%s"docker compose -f %s up"`, AliasMarker, composePath)
}

func (o *Orchestrator) alias(context.Context) (Status, string, error) {
	p, err := o.openProfile()
	if err != nil {
		return StatusWarning, err.Error(), nil
	}
	added, err := p.AppendOnce(AliasMarker, AliasLine(filepath.Join(o.cfg.WorkDir, ComposeFile)))
	if err != nil {
		return StatusWarning, err.Error(), nil
	}
	if !added {
		return StatusSkipped, "alias already defined", nil
	}
	return StatusDone, fmt.Sprintf("added the rov alias to %s", p.Path()), nil
}

func (o *Orchestrator) calibrationScript(ctx context.Context) (Status, string, error) {
	a := o.asset(CalibrationFile, fetch.ValidateNonEmpty)
	a.Mode = 0o755
	return o.fetchAsset(ctx, a)
}

// calibrationArgs splits CalibrationCommand with shell quoting rules and
// appends the script path.
func (o *Orchestrator) calibrationArgs() (string, []string, error) {
	script := filepath.Join(o.cfg.WorkDir, CalibrationFile)
	fields, err := shlex.Split(o.cfg.CalibrationCommand)
	if err != nil {
		return "", nil, fmt.Errorf("invalid calibration command %q: %w", o.cfg.CalibrationCommand, err)
	}
	if len(fields) == 0 {
		return script, nil, nil
	}
	return fields[0], append(fields[1:], script), nil
}

func (o *Orchestrator) calibrate(ctx context.Context) (Status, string, error) {
	choice, err := o.deps.Prompter.Confirm("Run the VN100 HSI calibration now? (y/n): ")
	if err != nil {
		return StatusFailed, "", err
	}

	switch choice {
	case prompt.Yes:
		name, args, err := o.calibrationArgs()
		if err != nil {
			return StatusWarning, err.Error(), nil
		}
		if err := o.deps.Runner.RunAttached(ctx, o.deps.Streams, name, args...); err != nil {
			return StatusWarning, err.Error(), nil
		}
		return StatusDone, "calibration finished", nil
	case prompt.No:
		later := strings.TrimSpace(o.cfg.CalibrationCommand + " " + filepath.Join(o.cfg.WorkDir, CalibrationFile))
		return StatusSkipped, fmt.Sprintf("run the calibration later with: %s (or rovprep calibrate)", later), nil
	default:
		return StatusFailed, "", ErrInvalidChoice
	}
}
