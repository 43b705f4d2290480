package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/cli"
	"github.com/bluerov-ops/rovprep/internal/engine"
	"github.com/bluerov-ops/rovprep/internal/fetch"
	"github.com/bluerov-ops/rovprep/internal/formatters"
	"github.com/bluerov-ops/rovprep/internal/history"
	"github.com/bluerov-ops/rovprep/internal/packages"
	"github.com/bluerov-ops/rovprep/internal/probe"
	"github.com/bluerov-ops/rovprep/internal/prompt"
	"github.com/bluerov-ops/rovprep/internal/registry"
	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/shell"
	"github.com/bluerov-ops/rovprep/internal/viper"
	"github.com/bluerov-ops/rovprep/version"
)

// bootstrapRunE provisions the companion computer using the configuration
// and flags to inform the execution.
func bootstrapRunE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger, err := logr.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("invalid logging configuration")
	}
	logger.Info("rovprep version", "version", version.Version.String())

	// Render the Viper configuration as a runtime.Config
	cfg, err := runtime.NewConfigFrom(*viper.Instance())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyStageFlags(cmd, cfg)

	formatter, err := formatters.NewForConfig(cfg)
	if err != nil {
		return err
	}

	store := registry.CredentialStore{Dir: cfg.DockerConfig}
	eng, err := engine.New(ctx, cfg, store, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer eng.Close()

	orchestrator := bootstrap.New(
		cfg.Bootstrap(),
		generateBootstrapDeps(cmd, cfg, eng, store),
		bootstrap.WithUsernamePrompt(cfg.CollectUsername),
		bootstrap.WithCalibration(cfg.Calibration),
	)

	cmd.SilenceUsage = true

	return cli.RunBootstrap(
		ctx,
		orchestrator.Run,
		cli.ReportConfig{
			IncludeJUnitResults: cfg.WriteJUnit,
			ArtifactsDir:        cfg.ArtifactsDir(),
		},
		formatter,
		&lazyLedger{path: cfg.HistoryPath()},
	)
}

// bootstrapPositionalArgs rejects arguments, and flags that swallowed the
// next flag as their value, as in --profile --no-calibration.
func bootstrapPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}

	var missing []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed && strings.HasPrefix(f.Value.String(), "--") {
			missing = append(missing, "--"+f.Name)
		}
	})
	if len(missing) > 0 {
		return fmt.Errorf("%s requires a value", strings.Join(missing, ", "))
	}

	return nil
}

// applyStageFlags lets the command line switch optional stages off.
func applyStageFlags(cmd *cobra.Command, cfg *runtime.Config) {
	if off, _ := cmd.Flags().GetBool("no-calibration"); off {
		cfg.Calibration = false
	}
	if off, _ := cmd.Flags().GetBool("no-username"); off {
		cfg.CollectUsername = false
	}
}

func generateBootstrapDeps(cmd *cobra.Command, cfg *runtime.Config, images bootstrap.ImagePuller, store registry.CredentialStore) bootstrap.Deps {
	runner := shell.ExecRunner{}
	out := cmd.OutOrStdout()

	return bootstrap.Deps{
		Fs: afero.NewOsFs(),
		Prober: probe.Ping{
			Runner:  runner,
			Address: cfg.ProbeAddress,
			Timeout: cfg.ProbeTimeout,
		},
		Fetcher:  fetch.New(),
		Prompter: prompt.New(cmd.InOrStdin(), out),
		Loginer: &registry.Client{
			Store:      store,
			Repository: cfg.Image,
			Insecure:   cfg.Insecure,
		},
		Installer: packages.Apt{Runner: runner, Sudo: os.Geteuid() != 0},
		Images:    images,
		Runner:    runner,
		Streams:   shell.Streams{In: cmd.InOrStdin(), Out: out, Err: cmd.ErrOrStderr()},
		Out:       out,
		Setenv:    os.Setenv,
		Getenv:    os.Getenv,
	}
}

// lazyLedger opens the run history only when a run is recorded, so runs
// that never get that far leave no ledger behind.
type lazyLedger struct {
	path string
}

func (l *lazyLedger) Record(ctx context.Context, results bootstrap.Results, runErr error) (int64, error) {
	ledger, err := history.Open(ctx, l.path)
	if err != nil {
		return 0, err
	}
	defer ledger.Close()

	return ledger.Record(ctx, results, runErr)
}

var _ cli.Recorder = &lazyLedger{}

