package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/option"
)

// AssetData is the publicly accessible representation of the remote
// assets a provisioning run uses. This struct will be serialized to JSON
// and presented to the end-user when requested, for example to mirror
// them before going offshore.
type AssetData struct {
	Images []string `json:"images"`
	Files  []string `json:"files"`
}

// imageList pins the configured image to its current digest. Images whose
// digest cannot be resolved are listed by tag.
func imageList(ctx context.Context, cfg *Config) []string {
	logger := logr.FromContextOrDiscard(ctx)

	ref, err := name.ParseReference(cfg.Image)
	if err != nil {
		logger.Error(fmt.Errorf("could not parse image reference: %w", err), "invalid image", "image", cfg.Image)
		return []string{}
	}

	digest, err := crane.Digest(cfg.Image, option.GenerateCraneOptions(ctx, cfg)...)
	if err != nil {
		logger.Error(fmt.Errorf("could not retrieve image digest: %w", err), "crane error")
		return []string{cfg.Image}
	}
	return []string{fmt.Sprintf("%s@%s", ref.Context().Name(), digest)}
}

func fileList(cfg *Config) []string {
	names := []string{bootstrap.LogoFile, bootstrap.ComposeFile}
	if cfg.Calibration {
		names = append(names, bootstrap.CalibrationFile)
	}
	base := strings.TrimSuffix(cfg.AssetBaseURL, "/")
	files := make([]string, 0, len(names))
	for _, n := range names {
		files = append(files, base+"/"+n)
	}
	return files
}

// Assets returns a full collection of assets used by a provisioning run.
func Assets(ctx context.Context, cfg *Config) AssetData {
	return AssetData{
		Images: imageList(ctx, cfg),
		Files:  fileList(cfg),
	}
}
