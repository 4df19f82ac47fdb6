package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/flakeseer/flakeseer/internal/model"
)

// TerminalConfig holds configuration for terminal output.
type TerminalConfig struct {
	Writer  io.Writer
	TopN    int  // number of flaky tests to detail (default: 5)
	Verbose bool // show suggestion descriptions
}

// DefaultTerminalConfig returns the default terminal configuration.
func DefaultTerminalConfig(w io.Writer) *TerminalConfig {
	return &TerminalConfig{
		Writer: w,
		TopN:   5,
	}
}

// RenderTerminal writes the session summary to the configured writer.
func RenderTerminal(cfg *TerminalConfig, report *model.Report, artifactPath string) error {
	if cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if report == nil {
		return fmt.Errorf("report is required")
	}

	w := cfg.Writer
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Flakeseer Report ===")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Target:  %s\n", report.Target)
	fmt.Fprintf(w, "Adapter: %s\n", report.Adapter)
	fmt.Fprintf(w, "Runs:    %d\n", report.RunsExecuted)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Test Counts:")
	fmt.Fprintf(w, "  Flaky:          %d\n", report.FlakyCount)
	fmt.Fprintf(w, "  Always Failing: %d\n", report.AlwaysFailingCount)
	fmt.Fprintf(w, "  Stable:         %d\n", report.StableCount)
	if report.TotalTests > 0 {
		fmt.Fprintf(w, "  Flakiness Rate: %.1f%%\n", report.FlakinessRate*100)
	}
	fmt.Fprintln(w)

	if len(report.FlakyTests) == 0 {
		fmt.Fprintln(w, "No flaky tests detected.")
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Flaky Tests (by score):")
		displayed := topN
		if len(report.FlakyTests) < displayed {
			displayed = len(report.FlakyTests)
		}
		for i := 0; i < displayed; i++ {
			a := report.FlakyTests[i]
			v := a.Verdict
			fmt.Fprintf(w, "  %d. %s\n", i+1, v.TestID)
			fmt.Fprintf(w, "     Score: %d/100  Pattern: %s\n", v.Score, v.Pattern)
			fmt.Fprintf(w, "     Sequence: %s  (%dP/%dF/%dS/%dE over %d runs)\n",
				v.Sequence, v.PassCount, v.FailCount, v.SkipCount, v.ErrorCount, v.TotalRuns)

			for _, f := range a.Findings {
				fmt.Fprintf(w, "     Cause: %s (confidence %.0f%%)\n", f.Cause, f.Confidence*100)
			}
			if len(a.Suggestions) > 0 {
				top := a.Suggestions[0]
				fmt.Fprintf(w, "     Fix: %s\n", top.Title)
				if cfg.Verbose {
					fmt.Fprintf(w, "          %s\n", truncateForTerminal(top.Description, 100))
				}
			}
			fmt.Fprintln(w)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range report.Warnings {
			fmt.Fprintf(w, "  - %s\n", truncateForTerminal(warn, 120))
		}
		fmt.Fprintln(w)
	}

	if artifactPath != "" {
		fmt.Fprintf(w, "Artifacts: %s\n", artifactPath)
		fmt.Fprintln(w)
	}

	return nil
}

// truncateForTerminal flattens and truncates a string for single-line display.
func truncateForTerminal(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
