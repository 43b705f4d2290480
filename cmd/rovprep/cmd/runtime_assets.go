package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/viper"
)

func runtimeAssetsCmd() *cobra.Command {
	runtimeAssetsCmd := &cobra.Command{
		Use:   "runtime-assets",
		Short: "Returns information about assets used at runtime.",
		Long:  `This command will return information on all remote assets used by rovprep. Useful for mirroring them before the vehicle leaves network coverage.`,
		RunE:  runtimeAssetsRunE,
	}

	return runtimeAssetsCmd
}

func runtimeAssetsRunE(cmd *cobra.Command, args []string) error {
	cfg, err := runtime.NewConfigFrom(*viper.Instance())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := printAssets(cmd.Context(), cfg, cmd.OutOrStdout()); err != nil {
		return err
	}

	return nil
}

func printAssets(ctx context.Context, cfg *runtime.Config, w io.Writer) error {
	assets := runtime.Assets(ctx, cfg)

	assetsJSON, err := prettyPrintJSON(assets)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, assetsJSON)
	return nil
}

// prettyPrintJSON marhals v with standard pretty print spacing and returns
// it in string form.
func prettyPrintJSON(v interface{}) (string, error) {
	json, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", err
	}

	return string(json), nil
}
