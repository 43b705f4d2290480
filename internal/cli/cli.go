// Package cli runs a provisioning bootstrap on behalf of the command line
// and leaves the run's results behind as artifacts and history.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/artifacts"
	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/formatters"
	"github.com/bluerov-ops/rovprep/internal/log"
)

var ErrNoArtifactWriter = errors.New("no artifact writer was configured")

type ReportConfig struct {
	IncludeJUnitResults bool
	// ArtifactsDir is where results are written when ctx carries no
	// ArtifactWriter. The directory is only created once a run is reported.
	ArtifactsDir        string
}

// Recorder keeps a ledger of runs.
type Recorder interface {
	Record(ctx context.Context, results bootstrap.Results, runErr error) (int64, error)
}

// RunBootstrap executes run and reports its results. Runs that never got
// past the connectivity probe leave nothing behind. A failure to report is
// logged; the returned error is the one that ended the run, if any.
func RunBootstrap(
	ctx context.Context,
	run func(context.Context) (bootstrap.Results, error),
	cfg ReportConfig,
	formatter formatters.ResponseFormatter,
	rec Recorder,
) error {
	logger := logr.FromContextOrDiscard(ctx)

	results, runErr := run(ctx)
	if !results.Probed() {
		return runErr
	}

	if err := WriteResults(ctx, results, runErr, cfg, formatter, rec); err != nil {
		logger.Error(err, "could not report provisioning results")
	}

	logger.Info(fmt.Sprintf("Provisioning result: %s", convertCompleted(results.Completed)),
		"warnings", len(results.Warnings()))
	return runErr
}

// WriteResults writes the formatted results, and optionally JUnit results,
// with the ArtifactWriter configured in ctx, or a filesystem writer on
// cfg.ArtifactsDir, then records the run with rec when one is given.
func WriteResults(
	ctx context.Context,
	results bootstrap.Results,
	runErr error,
	cfg ReportConfig,
	formatter formatters.ResponseFormatter,
	rec Recorder,
) error {
	logger := logr.FromContextOrDiscard(ctx)

	aw, err := artifactWriter(ctx, cfg)
	if err != nil {
		return err
	}

	formattedResults, err := formatter.Format(ctx, results)
	if err != nil {
		return err
	}

	resultsFilename, err := aw.WriteFile(ResultsFilenameWithExtension(formatter.FileExtension()), bytes.NewReader(formattedResults))
	if err != nil {
		return err
	}
	logger.Info("results written to disk", "filename", resultsFilename)

	if cfg.IncludeJUnitResults {
		if err := writeJUnit(ctx, aw, results); err != nil {
			return err
		}
	}

	if rec != nil {
		id, err := rec.Record(ctx, results, runErr)
		if err != nil {
			return fmt.Errorf("could not record run: %w", err)
		}
		logger.V(log.DBG).Info("run recorded", "id", id)
	}

	return nil
}

func artifactWriter(ctx context.Context, cfg ReportConfig) (artifacts.ArtifactWriter, error) {
	if aw := artifacts.WriterFromContext(ctx); aw != nil {
		return aw, nil
	}
	if cfg.ArtifactsDir == "" {
		return nil, ErrNoArtifactWriter
	}
	fw, err := artifacts.NewFilesystemWriter(artifacts.WithDirectory(cfg.ArtifactsDir))
	if err != nil {
		return nil, err
	}
	return fw, nil
}

func writeJUnit(ctx context.Context, aw artifacts.ArtifactWriter, results bootstrap.Results) error {
	junitformatter, err := formatters.NewByName("junitxml")
	if err != nil {
		return err
	}

	junitResults, err := junitformatter.Format(ctx, results)
	if err != nil {
		return err
	}

	junitFilename, err := aw.WriteFile("results-junit.xml", bytes.NewReader(junitResults))
	if err != nil {
		return err
	}
	logr.FromContextOrDiscard(ctx).V(log.TRC).Info("JUnitXML written", "filename", junitFilename)

	return nil
}

func convertCompleted(completed bool) string {
	if completed {
		return "COMPLETED"
	}

	return "STOPPED"
}

func ResultsFilenameWithExtension(ext string) string {
	return strings.Join([]string{"results", ext}, ".")
}
