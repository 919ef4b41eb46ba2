package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rollout/rollout/internal/result"
)

func TestFormatTable(t *testing.T) {
	out := formatTable(
		[]string{"HOST", "OUTCOME"},
		[][]string{
			{"web-01.example.com:22", "succeeded"},
			{"db-01:22", "failed"},
		},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "HOST")
	assert.Contains(t, lines[1], "---")
	// Columns line up on the widest cell.
	assert.Equal(t, strings.Index(lines[0], "OUTCOME"), strings.Index(lines[2], "succeeded"))
}

func TestStripAnsi(t *testing.T) {
	colorEnabled = true
	defer func() { colorEnabled = false }()

	assert.Equal(t, "hello", stripAnsi(Red("hello")))
	assert.Equal(t, "plain", stripAnsi("plain"))
}

func TestPadRightAccountsForColorCodes(t *testing.T) {
	colorEnabled = true
	defer func() { colorEnabled = false }()

	padded := padRight(Green("ok"), 6)
	assert.Equal(t, 6, len(stripAnsi(padded)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m5s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h", formatDuration(3*time.Hour))
}

func TestSummaryLine(t *testing.T) {
	colorEnabled = false

	line := summaryLine(result.Summary{
		Total:     5,
		Succeeded: 2,
		Failed:    1,
		Aborted:   2,
	})
	assert.Equal(t, "5 hosts: 2 succeeded, 1 failed, 2 aborted", line)

	line = summaryLine(result.Summary{Total: 1, AlreadyInstalled: 1})
	assert.Contains(t, line, "1 already installed")
}

func TestDetailCell(t *testing.T) {
	assert.Equal(t, "", detailCell(nil))
	assert.Equal(t, "installing: command exited 2", detailCell(&result.Diagnostic{
		Step:    "installing",
		Message: "command exited 2",
	}))

	long := detailCell(&result.Diagnostic{Message: strings.Repeat("x", 200)})
	assert.Len(t, long, 80)
	assert.True(t, strings.HasSuffix(long, "..."))
}
