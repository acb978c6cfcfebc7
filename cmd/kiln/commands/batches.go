package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/kiln/internal/diag"
	"github.com/dyluth/kiln/internal/printer"
)

var (
	batchesCaptureRoot  string
	batchesOutputFormat string
)

var batchesCmd = &cobra.Command{
	Use:   "batches JOB_KEY",
	Short: "List durable failure captures for a job",
	Long: `List the failing-batch captures a job has written to disk.

Every time a training run fails on a specific batch, the batch payload
and failure message are persisted under error-batches/<job>/ with a
timestamped, collision-free file name. Use this command to see what a
job has captured before debugging offline.

Output Formats:
  default - Human-readable table with time, size and message
  jsonl   - Line-delimited JSON for scripting

Examples:
  # List captures for a job
  kiln batches vae-1

  # Captures as JSONL for scripting
  kiln batches vae-1 --output=jsonl | jq -r '.path'`,
	Args: cobra.ExactArgs(1),
	RunE: runBatches,
}

func init() {
	batchesCmd.Flags().StringVar(&batchesCaptureRoot, "capture-root", "", "Capture tree root (default: ./error-batches)")
	batchesCmd.Flags().StringVarP(&batchesOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(batchesCmd)
}

func runBatches(cmd *cobra.Command, args []string) error {
	jobKey := args[0]

	var format diag.OutputFormat
	switch batchesOutputFormat {
	case "default":
		format = diag.OutputFormatDefault
	case "jsonl":
		format = diag.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", batchesOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	captures, err := diag.ListCaptures(batchesCaptureRoot, jobKey)
	if err != nil {
		return fmt.Errorf("failed to list captures: %w", err)
	}

	if format == diag.OutputFormatJSONL {
		return diag.FormatCapturesJSONL(os.Stdout, captures)
	}
	diag.FormatCapturesTable(os.Stdout, captures, jobKey)
	return nil
}
