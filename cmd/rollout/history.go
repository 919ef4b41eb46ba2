package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollout/rollout/internal/config"
	"github.com/rollout/rollout/internal/history"
	"github.com/rollout/rollout/internal/result"
)

var (
	historyDB    string
	historyLimit int
	pruneMaxAge  time.Duration
)

// historyCmd groups the run history subcommands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previous runs recorded in the history store",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full result of a single run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the given age",
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyDB, "db", "", "History database path (default: from the plan file)")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyPruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 30*24*time.Hour, "Delete runs that ended longer ago than this")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

// openHistory resolves the database path and opens the store. The flag
// wins, then ROLLOUT_HISTORY_PATH, then the plan file's history section.
func openHistory() (*history.Store, error) {
	path := historyDB
	if path == "" {
		path = os.Getenv("ROLLOUT_HISTORY_PATH")
	}
	if path == "" {
		if cfg, err := config.Load(planFile); err == nil {
			path = cfg.History.Path
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no history database configured, pass --db or set history.path in the plan")
	}
	return history.Open(path)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if outputFormat == "json" {
		printJSON(records)
		return nil
	}

	if len(records) == 0 {
		fmt.Println(Dim("no runs recorded"))
		return nil
	}

	headers := []string{"RUN ID", "STARTED", "DURATION", "HOSTS", "SUCCEEDED", "FAILED", "MODE"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		mode := "run"
		if rec.DryRun {
			mode = Cyan("dry-run")
		}
		rows = append(rows, []string{
			rec.RunID,
			formatTimestamp(rec.StartedAt),
			formatDuration(rec.EndedAt.Sub(rec.StartedAt)),
			fmt.Sprintf("%d", rec.Summary.Total),
			Green(fmt.Sprintf("%d", rec.Summary.Succeeded)),
			failedCell(rec.Summary.Failed),
			mode,
		})
	}
	printTable(headers, rows)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(args[0])
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	art := &result.Artifact{
		RunID:     rec.RunID,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Summary:   rec.Summary,
		Results:   rec.Results,
	}
	printRunResult(art, rec.DryRun)
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Prune(pruneMaxAge); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	Success(fmt.Sprintf("pruned runs older than %s", pruneMaxAge))
	return nil
}

func failedCell(n int) string {
	if n == 0 {
		return "0"
	}
	return Red(fmt.Sprintf("%d", n))
}
