package runtime

import "time"

// Defaults for every configuration key. Paths may reference $HOME or
// start with ~/; they are expanded when the configuration is read.
var (
	DefaultProfile            = "~/.bashrc"
	DefaultWorkDir            = "~"
	DefaultStateDir           = "~/.rovprep"
	DefaultLogFile            = "rovprep.log"
	DefaultLogLevel           = "info"
	DefaultProbeAddress       = "8.8.8.8"
	DefaultProbeTimeout       = 5 * time.Second
	DefaultAssetBaseURL       = "https://raw.githubusercontent.com/bluerov-ops/rov-provisioning/main"
	DefaultRegistry           = "ghcr.io"
	DefaultCredentialVar      = "CR_PAT"
	DefaultImage              = "ghcr.io/bluerov-ops/rov-software:main"
	DefaultMinEngineVersion   = "20.10.0"
	DefaultCalibrationCommand = "python3"
	DefaultResponseFormat     = "json"
	DefaultVectorNavPort      = "/dev/ttyAMA4"
	DefaultHSISettle          = 120 * time.Second
	DefaultPlatform           = "arm64"

	DefaultPackages = []string{
		"tmux",
		"htop",
		"vim",
		"git",
		"net-tools",
		"i2c-tools",
		"screen",
		"python3-serial",
		"python3-numpy",
	}
)
