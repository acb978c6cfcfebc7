package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/launch"
	"github.com/dyluth/kiln/internal/printer"
)

var launchConfigPath string

var launchCmd = &cobra.Command{
	Use:   "launch -- WORKER [ARGS...]",
	Short: "Start one local worker process per rank",
	Long: `Start world_size copies of a worker command on this machine, one per
rank. Each worker receives its identity through the environment (RANK,
LOCAL_RANK, WORLD_SIZE) and resolves it itself at startup, exactly as
it would under a cluster launcher.

The worker command comes after a "--" separator. The job's world size
and serialization directory come from kiln.yml.

Examples:
  # Two-rank local run
  kiln launch --config kiln.yml -- ./train-worker

  # Pass arguments to the worker
  kiln launch --config kiln.yml -- python train.py --fast-dev-run`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().StringVarP(&launchConfigPath, "config", "c", "kiln.yml", "Path to the job configuration file")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return printer.Error(
			"no worker command",
			"launch needs the worker command after a \"--\" separator.",
			[]string{"Example: kiln launch --config kiln.yml -- ./train-worker"},
		)
	}

	jobConfig, err := config.Load(launchConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load job config: %w", err)
	}

	printer.Step("Launching %d worker(s): %v\n", *jobConfig.WorldSize, args)

	results, err := launch.Run(context.Background(), launch.Options{
		Command:   args,
		WorldSize: *jobConfig.WorldSize,
		Env: []string{
			fmt.Sprintf("KILN_SERIALIZATION_DIR=%s", jobConfig.SerializationDir),
		},
	})
	for _, result := range results {
		if result.Err != nil {
			printer.Warning("rank %d exited with code %d\n", result.Rank, result.ExitCode)
		}
	}
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}

	printer.Success("All %d worker(s) finished\n", len(results))
	return nil
}
