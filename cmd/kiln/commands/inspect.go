package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/kiln/internal/archive"
	"github.com/dyluth/kiln/internal/model"
	"github.com/dyluth/kiln/internal/printer"
)

var inspectShowConfig bool

var inspectCmd = &cobra.Command{
	Use:   "inspect ARCHIVE",
	Short: "Show the configuration and metrics inside a model archive",
	Long: `Unpack a model archive (or a pre-extracted archive directory) and
print its training metrics, and optionally its full configuration tree.

No model is constructed: inspect reads config.json and metrics.json
only, so it works without the model's weights being loadable on this
machine.

Examples:
  # Show the metrics of an archived run
  kiln inspect ./runs/vae-1/model.tar.gz

  # Include the flattened configuration
  kiln inspect ./runs/vae-1/model.tar.gz --config`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectShowConfig, "config", false, "Also print the configuration tree")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	// Nil loader: config and metrics only, no model construction.
	arch, err := archive.Unpack(context.Background(), args[0], nil, model.CPUDevice)
	if err != nil {
		var traversal *archive.TraversalError
		if errors.As(err, &traversal) {
			return printer.Error(
				"hostile archive rejected",
				fmt.Sprintf("Member %q would extract outside the archive root. Nothing was extracted.", traversal.Member),
				[]string{"This archive is corrupt or was not produced by kiln; do not extract it by hand either"},
			)
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}

	if inspectShowConfig {
		flat := arch.Config.Flat()
		pretty, err := json.MarshalIndent(flat, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		printer.Info("Config: %s\n\n", pretty)
	}

	printer.Metrics("Trained model metrics", arch.Metrics)
	return nil
}
