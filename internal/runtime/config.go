// Package runtime contains the configuration consumed by rovprep at
// runtime.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/history"
	"github.com/bluerov-ops/rovprep/internal/option"
)

// Config contains configuration details for running rovprep.
type Config struct {
	Profile  string
	WorkDir  string
	StateDir string
	LogFile  string
	LogLevel string

	ProbeAddress string
	ProbeTimeout time.Duration
	AssetBaseURL string

	Registry         string
	CredentialVar    string
	RegistryUsername string
	CollectUsername  bool
	DockerConfig     string
	Platform         string
	Insecure         bool
	Image            string
	MinEngineVersion string
	Packages         []string

	Calibration        bool
	CalibrationCommand string
	VectorNavPort      string
	HSISettle          time.Duration

	ResponseFormat string
	WriteJUnit     bool
}

// NewConfigFrom will return a runtime.Config based on the stored inputs in
// the provided viper.Viper. Paths are expanded against the current user's
// home directory.
func NewConfigFrom(vcfg viper.Viper) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}

	cfg := Config{}
	cfg.Profile = ExpandPath(vcfg.GetString("profile"), home)
	cfg.WorkDir = ExpandPath(vcfg.GetString("workdir"), home)
	cfg.StateDir = ExpandPath(vcfg.GetString("statedir"), home)
	cfg.LogFile = vcfg.GetString("logfile")
	cfg.LogLevel = vcfg.GetString("loglevel")
	cfg.ResponseFormat = vcfg.GetString("format")
	cfg.WriteJUnit = vcfg.GetBool("junit")

	cfg.storeBootstrapConfiguration(vcfg)
	cfg.storeRegistryConfiguration(vcfg, home)
	if err := cfg.storeCalibrationConfiguration(vcfg); err != nil {
		return nil, err
	}

	if cfg.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("probe_timeout must be positive, got %s", cfg.ProbeTimeout)
	}
	return &cfg, nil
}

func (c *Config) storeBootstrapConfiguration(vcfg viper.Viper) {
	c.ProbeAddress = vcfg.GetString("probe_address")
	c.ProbeTimeout = vcfg.GetDuration("probe_timeout")
	c.AssetBaseURL = vcfg.GetString("asset_base_url")
	c.Packages = vcfg.GetStringSlice("packages")
	c.Image = vcfg.GetString("image")
	c.MinEngineVersion = vcfg.GetString("min_engine_version")
}

func (c *Config) storeRegistryConfiguration(vcfg viper.Viper, home string) {
	c.Registry = vcfg.GetString("registry")
	c.CredentialVar = vcfg.GetString("credential_var")
	c.RegistryUsername = vcfg.GetString("registry_username")
	c.CollectUsername = vcfg.GetBool("collect_username")
	if dc := vcfg.GetString("docker_config"); dc != "" {
		c.DockerConfig = ExpandPath(dc, home)
	}
	c.Platform = vcfg.GetString("platform")
	c.Insecure = vcfg.GetBool("insecure")
}

func (c *Config) storeCalibrationConfiguration(vcfg viper.Viper) error {
	c.Calibration = vcfg.GetBool("calibration")
	c.CalibrationCommand = vcfg.GetString("calibration_command")
	c.VectorNavPort = vcfg.GetString("vectornav_port")
	c.HSISettle = vcfg.GetDuration("hsi_settle")
	if c.HSISettle < 0 {
		return fmt.Errorf("hsi_settle must not be negative, got %s", c.HSISettle)
	}
	return nil
}

// ExpandPath expands a leading ~ and environment references such as $HOME.
func ExpandPath(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		p = filepath.Join(home, p[2:])
	}
	return os.ExpandEnv(p)
}

// LogFilePath is where the execution log is written. A relative log file
// name is placed in the state directory.
func (c *Config) LogFilePath() string {
	if c.LogFile == "" || filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.StateDir, c.LogFile)
}

// ArtifactsDir holds the per-run result documents.
func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.StateDir, "artifacts")
}

// HistoryPath is the run ledger.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir, history.DefaultFile)
}

// Bootstrap returns the orchestrator configuration.
func (c *Config) Bootstrap() bootstrap.Config {
	return bootstrap.Config{
		Profile:            c.Profile,
		WorkDir:            c.WorkDir,
		AssetBaseURL:       c.AssetBaseURL,
		Registry:           c.Registry,
		CredentialVar:      c.CredentialVar,
		RegistryUsername:   c.RegistryUsername,
		Image:              c.Image,
		MinEngineVersion:   c.MinEngineVersion,
		Packages:           c.Packages,
		CalibrationCommand: c.CalibrationCommand,
	}
}

// This is to satisfy the CraneConfig interface
func (c *Config) CraneDockerConfig() string {
	return c.DockerConfig
}

func (c *Config) CranePlatform() string {
	return c.Platform
}

func (c *Config) CraneInsecure() bool {
	return c.Insecure
}

var _ option.CraneConfig = &Config{}
