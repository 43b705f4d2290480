// Package cmd implements the command-line interface for rovprep.
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/bombsimon/logrusr/v4"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	spfviper "github.com/spf13/viper"

	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/viper"
	"github.com/bluerov-ops/rovprep/version"
)

var configFileUsed bool

func init() {
	cobra.OnInitialize(func() { initConfig(viper.Instance()) })
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:              "rovprep",
		Short:            "BlueROV2 companion computer provisioning tool.",
		Long:             "A utility that prepares the companion computer of a BlueROV2: it stores the registry credential, installs packages, pulls the robot software image and optionally calibrates the VN100 IMU.",
		Version:          version.Version.String(),
		Args:             bootstrapPositionalArgs,
		PersistentPreRun: preRunConfig,
		RunE:             bootstrapRunE,
	}

	viper := viper.Instance()
	rootCmd.PersistentFlags().String("logfile", "", "Where the execution logfile will be written. Relative to the state directory. (env: ROVPREP_LOGFILE)")
	_ = viper.BindPFlag("logfile", rootCmd.PersistentFlags().Lookup("logfile"))

	rootCmd.PersistentFlags().String("loglevel", "", "The verbosity of the rovprep tool itself. Ex. warn, debug, trace, info, error. (env: ROVPREP_LOGLEVEL)")
	_ = viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))

	rootCmd.PersistentFlags().String("statedir", "", "Where logs, results and run history are kept. (env: ROVPREP_STATEDIR)")
	_ = viper.BindPFlag("statedir", rootCmd.PersistentFlags().Lookup("statedir"))

	flags := rootCmd.Flags()
	flags.String("profile", "", "The shell profile holding the registry credential and alias. (env: ROVPREP_PROFILE)")
	_ = viper.BindPFlag("profile", flags.Lookup("profile"))

	flags.String("workdir", "", "Where downloaded assets are placed. (env: ROVPREP_WORKDIR)")
	_ = viper.BindPFlag("workdir", flags.Lookup("workdir"))

	flags.String("format", "", "The format of the results document. Ex. json, xml, junitxml, text. (env: ROVPREP_FORMAT)")
	_ = viper.BindPFlag("format", flags.Lookup("format"))

	flags.Bool("junit", false, "Write JUnit results alongside the results document. (env: ROVPREP_JUNIT)")
	_ = viper.BindPFlag("junit", flags.Lookup("junit"))

	flags.String("image", "", "The robot software image to pull. (env: ROVPREP_IMAGE)")
	_ = viper.BindPFlag("image", flags.Lookup("image"))

	flags.Bool("no-calibration", false, "Skip the calibration stage.")
	flags.Bool("no-username", false, "Do not ask for the registry username; use registry_username instead.")

	rootCmd.AddCommand(calibrateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(runtimeAssetsCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func Execute() error {
	return rootCmd().ExecuteContext(context.Background())
}

func initConfig(viper *spfviper.Viper) {
	// set up ENV var support
	viper.SetEnvPrefix("rovprep")
	viper.AutomaticEnv()

	// set up optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	configFileUsed = true
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(spfviper.ConfigFileNotFoundError); ok {
			configFileUsed = false
		}
	}

	// Set up logging config defaults
	viper.SetDefault("logfile", runtime.DefaultLogFile)
	viper.SetDefault("loglevel", runtime.DefaultLogLevel)
	viper.SetDefault("statedir", runtime.DefaultStateDir)
	viper.SetDefault("format", runtime.DefaultResponseFormat)
	viper.SetDefault("junit", false)

	// Set up bootstrap defaults
	viper.SetDefault("profile", runtime.DefaultProfile)
	viper.SetDefault("workdir", runtime.DefaultWorkDir)
	viper.SetDefault("probe_address", runtime.DefaultProbeAddress)
	viper.SetDefault("probe_timeout", runtime.DefaultProbeTimeout)
	viper.SetDefault("asset_base_url", runtime.DefaultAssetBaseURL)
	viper.SetDefault("packages", runtime.DefaultPackages)
	viper.SetDefault("image", runtime.DefaultImage)
	viper.SetDefault("min_engine_version", runtime.DefaultMinEngineVersion)

	// Set up registry defaults
	viper.SetDefault("registry", runtime.DefaultRegistry)
	viper.SetDefault("credential_var", runtime.DefaultCredentialVar)
	viper.SetDefault("registry_username", "")
	viper.SetDefault("collect_username", true)
	viper.SetDefault("docker_config", "")
	viper.SetDefault("platform", runtime.DefaultPlatform)
	viper.SetDefault("insecure", false)

	// Set up calibration defaults
	viper.SetDefault("calibration", true)
	viper.SetDefault("calibration_command", runtime.DefaultCalibrationCommand)
	viper.SetDefault("vectornav_port", runtime.DefaultVectorNavPort)
	viper.SetDefault("hsi_settle", runtime.DefaultHSISettle)
}

// preRunConfig is used by cobra.PreRun in all commands to load all necessary configurations
func preRunConfig(cmd *cobra.Command, args []string) {
	viper := viper.Instance()
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	// set up logging
	logname := logFilePath(viper)
	// ignoring error since OpenFile will error and we'll still log to stderr
	_ = os.MkdirAll(filepath.Dir(logname), 0o755)
	logFile, err := os.OpenFile(logname, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err == nil {
		mw := io.MultiWriter(os.Stderr, logFile)
		l.SetOutput(mw)
	} else {
		l.Infof("Failed to log to file, using default stderr")
	}
	if ll, err := logrus.ParseLevel(viper.GetString("loglevel")); err == nil {
		l.SetLevel(ll)
	}

	if !configFileUsed {
		l.Debug("config file not found, proceeding without it")
	}

	logger := logrusr.New(l)
	ctx := logr.NewContext(cmd.Context(), logger)
	cmd.SetContext(ctx)
}

// logFilePath places a relative logfile in the state directory.
func logFilePath(viper *spfviper.Viper) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return viper.GetString("logfile")
	}
	cfg := runtime.Config{
		LogFile:  viper.GetString("logfile"),
		StateDir: runtime.ExpandPath(viper.GetString("statedir"), home),
	}
	return cfg.LogFilePath()
}
