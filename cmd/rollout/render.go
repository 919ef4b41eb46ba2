package main

import (
	"fmt"

	"github.com/rollout/rollout/internal/result"
)

// printRunResult renders a finished run in the selected output format.
func printRunResult(art *result.Artifact, dry bool) {
	if outputFormat == "json" {
		printJSON(art)
		return
	}

	fmt.Println()
	title := fmt.Sprintf("Run %s", art.RunID)
	if dry {
		title += " " + Yellow("(dry run)")
	}
	fmt.Println(Bold(title))
	fmt.Println()

	headers := []string{"HOST", "OUTCOME", "DURATION", "DETAIL"}
	rows := make([][]string, 0, len(art.Results))
	for _, res := range art.Results {
		rows = append(rows, []string{
			res.Host,
			outcomeCell(res.Outcome),
			formatDuration(res.EndedAt.Sub(res.StartedAt)),
			detailCell(res.Diagnostic),
		})
	}
	printTable(headers, rows)

	fmt.Println()
	fmt.Println(summaryLine(art.Summary))
}

func outcomeCell(o result.Outcome) string {
	switch o {
	case result.OutcomeSucceeded:
		return Green(string(o))
	case result.OutcomeFailed:
		return Red(string(o))
	case result.OutcomeSkippedInsufficientResources, result.OutcomeSkippedAborted:
		return Yellow(string(o))
	case result.OutcomeSkippedAlreadyInstalled, result.OutcomeSkippedDryRun:
		return Cyan(string(o))
	default:
		return string(o)
	}
}

func detailCell(d *result.Diagnostic) string {
	if d == nil {
		return ""
	}
	msg := d.Message
	if d.Step != "" {
		msg = d.Step + ": " + msg
	}
	const maxDetail = 80
	if len(msg) > maxDetail {
		msg = msg[:maxDetail-3] + "..."
	}
	return msg
}

func summaryLine(s result.Summary) string {
	line := fmt.Sprintf("%d hosts: %s succeeded, %s failed",
		s.Total,
		Green(fmt.Sprintf("%d", s.Succeeded)),
		Red(fmt.Sprintf("%d", s.Failed)))
	if s.AlreadyInstalled > 0 {
		line += fmt.Sprintf(", %d already installed", s.AlreadyInstalled)
	}
	if s.InsufficientResources > 0 {
		line += ", " + Yellow(fmt.Sprintf("%d insufficient resources", s.InsufficientResources))
	}
	if s.DryRun > 0 {
		line += fmt.Sprintf(", %d dry run", s.DryRun)
	}
	if s.Aborted > 0 {
		line += ", " + Yellow(fmt.Sprintf("%d aborted", s.Aborted))
	}
	return line
}
