package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln - Coordination and recovery substrate for multi-process training jobs",
	Long: `Kiln is the operational substrate around multi-process model-training
jobs: primary-rank gating of side effects, packing a trained model's
config, weights, metrics and vocabulary into one portable archive,
durable capture of failing batches, and fan-out of diagnostics to
independent sinks.

The model itself stays opaque: kiln coordinates and recovers, the
training code trains.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
