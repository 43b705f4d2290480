package cmd

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/bluerov-ops/rovprep/internal/prompt"
	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/vectornav"
	"github.com/bluerov-ops/rovprep/internal/viper"
)

// openSensorPort opens the serial device the VN100 is attached to.
var openSensorPort = func(dev string) (io.ReadWriteCloser, error) {
	port, err := vectornav.OpenPort(dev)
	if err != nil {
		return nil, err
	}
	return port, nil
}

func calibrateCmd() *cobra.Command {
	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run the VN100 hard/soft-iron calibration",
		Long:  "This command drives the hard/soft-iron estimation of the VN100 IMU over its serial port. The vehicle has to be rotated through every orientation while the estimation runs.",
		Args:  cobra.NoArgs,
		RunE:  calibrateRunE,
	}

	viper := viper.Instance()
	flags := calibrateCmd.Flags()

	flags.String("port", "", "The serial device the VN100 is attached to. (env: ROVPREP_VECTORNAV_PORT)")
	_ = viper.BindPFlag("vectornav_port", flags.Lookup("port"))

	flags.Duration("settle", 0, "How long the estimation runs while the vehicle is rotated. (env: ROVPREP_HSI_SETTLE)")
	_ = viper.BindPFlag("hsi_settle", flags.Lookup("settle"))

	return calibrateCmd
}

func calibrateRunE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logr.FromContextOrDiscard(ctx)

	cfg, err := runtime.NewConfigFrom(*viper.Instance())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port, err := openSensorPort(cfg.VectorNavPort)
	if err != nil {
		return err
	}
	defer port.Close()
	logger.Info("connected to vn100", "port", cfg.VectorNavPort)

	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	session := vectornav.NewSession(port, prompt.New(cmd.InOrStdin(), out), out)
	session.Settle = cfg.HSISettle

	report, err := session.Run(ctx)
	logger.Info("calibration finished", "stage", report.Stage, "rate", report.Rate)
	return err
}
