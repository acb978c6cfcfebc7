package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/kiln/internal/archive"
	"github.com/dyluth/kiln/internal/printer"
)

var (
	archiveSerializationDir string
	archiveWeightsDir       string
	archiveOutput           string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Pack a trained model into a portable model.tar.gz",
	Long: `Pack a finished training run's four artifacts - config.json, the
weights file, metrics.json and the vocabulary directory - into one
compressed tar container.

All four artifacts are checked before a single byte is written; a
missing one aborts the pack with no output file. The container is
written to a temporary file and renamed into place, so an interrupted
pack never leaves a corrupt archive behind.

Examples:
  # Archive the best checkpoint into the run directory
  kiln archive --serialization-dir ./runs/vae-1 --weights-dir ./runs/vae-1/best-model

  # Write the container somewhere else
  kiln archive --serialization-dir ./runs/vae-1 --weights-dir ./runs/vae-1/best-model --output ./artifacts/`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringVar(&archiveSerializationDir, "serialization-dir", "", "Run directory holding config.json and vocabulary/ (required)")
	archiveCmd.Flags().StringVar(&archiveWeightsDir, "weights-dir", "", "Checkpoint directory holding model.pt and metrics.json (required)")
	archiveCmd.Flags().StringVarP(&archiveOutput, "output", "o", "", "Container path or directory (default: model.tar.gz inside the run directory)")
	archiveCmd.MarkFlagRequired("serialization-dir")
	archiveCmd.MarkFlagRequired("weights-dir")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	path, err := archive.Pack(archiveSerializationDir, archiveWeightsDir, archiveOutput)
	if err != nil {
		var missing *archive.MissingArtifactError
		if errors.As(err, &missing) {
			return printer.Error(
				"missing artifact",
				fmt.Sprintf("Cannot archive: %s was not found at %s.", missing.Artifact, missing.Path),
				[]string{
					"Check that the training run completed and wrote its best checkpoint",
					"Check the --serialization-dir and --weights-dir paths",
				},
			)
		}
		return fmt.Errorf("failed to pack archive: %w", err)
	}

	printer.Success("Archived model to %s\n", path)
	return nil
}
