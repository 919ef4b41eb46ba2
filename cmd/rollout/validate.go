package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollout/rollout/internal/config"
)

// validateCmd checks a rollout plan without contacting any host
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a rollout plan without contacting any host",
	Long: `Parse the plan file, apply defaults and environment overrides, and
report every validation problem at once. No SSH connection is made.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(planFile)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			Error(fmt.Sprintf("plan %s is invalid:", planFile))
			for _, e := range verr.Unwrap() {
				fmt.Printf("  - %v\n", e)
			}
		} else {
			Error(fmt.Sprintf("load plan: %v", err))
		}
		exitCode = 2
		return nil
	}

	if outputFormat == "json" {
		printJSON(map[string]interface{}{
			"plan":            planFile,
			"valid":           true,
			"hosts":           len(cfg.Hosts),
			"package":         cfg.PackageName(),
			"batch_size":      cfg.MaxConcurrentInstalls,
			"delay_seconds":   *cfg.DelayBetweenBatchesSeconds,
			"install_dir":     cfg.InstallDir,
			"force_reinstall": cfg.ForceReinstall,
		})
		return nil
	}

	Success(fmt.Sprintf("plan %s is valid", planFile))
	fmt.Printf("  Hosts:       %d\n", len(cfg.Hosts))
	fmt.Printf("  Package:     %s\n", cfg.PackageName())
	fmt.Printf("  Install dir: %s\n", cfg.InstallDir)
	fmt.Printf("  Batches:     %d hosts at a time, %ds between batches\n",
		cfg.MaxConcurrentInstalls, *cfg.DelayBetweenBatchesSeconds)
	if cfg.ForceReinstall {
		Warning("force_reinstall is set, installed hosts will be reinstalled")
	}
	return nil
}
