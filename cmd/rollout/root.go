package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information (set from main.go)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	planFile     string
	outputFormat string
	noColor      bool
)

// exitCode is the process exit code for commands that complete without a
// cobra error: 0 all hosts ended intentionally, 1 any host failed or was
// skipped unintentionally, 2 invalid plan.
var exitCode int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Batched SSH rollout of the Splunk Universal Forwarder across a fleet",
	Long: `rollout installs and configures the Splunk Universal Forwarder on a fleet
of remote hosts over SSH, working through the fleet in bounded batches.

It provides commands for:
  - run: Execute a rollout plan against the fleet
  - validate: Check a rollout plan without contacting any host
  - history: Inspect previous runs recorded in the local history store

Environment variables:
  ROLLOUT_MAX_CONCURRENT_INSTALLS        Batch size override
  ROLLOUT_DELAY_BETWEEN_BATCHES_SECONDS  Inter-batch delay override
  ROLLOUT_CONNECT_TIMEOUT_SECONDS        SSH connect timeout override
  ROLLOUT_COMMAND_TIMEOUT_SECONDS        Remote command timeout override
  ROLLOUT_FORCE_REINSTALL                Reinstall even when already present
  ROLLOUT_SSH_PASSWORD                   Fleet-wide SSH password fallback
  ROLLOUT_LOG_LEVEL                      Log level: debug, info, warn, error
  ROLLOUT_LOG_FORMAT                     Log format: json, console
  ROLLOUT_HISTORY_PATH                   History database path`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		InitColor(!noColor)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build time of rollout.`,
	Run: func(cmd *cobra.Command, args []string) {
		if outputFormat == "json" {
			info := map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_time": BuildTime,
				"go_version": runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			}
			printJSON(info)
			return
		}

		fmt.Printf("%s\n", Bold("rollout"))
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Built:      %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&planFile, "plan", "f", "rollout.yaml", "Rollout plan file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: json, table")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
}
