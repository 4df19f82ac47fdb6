package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flakeseer/flakeseer/internal/model"
)

// WriteMarkdown writes the report as Markdown to <outDir>/report.md.
func WriteMarkdown(outDir string, report *model.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	path := filepath.Join(outDir, "report.md")

	if err := os.WriteFile(path, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(report *model.Report) string {
	if report == nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("# Flakeseer Report\n\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Target | %s |\n", escapeMarkdown(report.Target)))
	sb.WriteString(fmt.Sprintf("| Adapter | %s |\n", report.Adapter))
	sb.WriteString(fmt.Sprintf("| Runs Executed | %d |\n", report.RunsExecuted))
	sb.WriteString(fmt.Sprintf("| Total Tests | %d |\n", report.TotalTests))
	sb.WriteString(fmt.Sprintf("| Stable Tests | %d |\n", report.StableCount))
	sb.WriteString(fmt.Sprintf("| Flaky Tests | %d |\n", report.FlakyCount))
	sb.WriteString(fmt.Sprintf("| Always Failing | %d |\n", report.AlwaysFailingCount))
	sb.WriteString(fmt.Sprintf("| Flakiness Rate | %.1f%% |\n", report.FlakinessRate*100))
	sb.WriteString("\n")

	if len(report.FlakyTests) > 0 {
		sb.WriteString("## Flaky Tests\n\n")
		sb.WriteString("| Rank | Test | Score | Pattern | Sequence | Pass/Fail/Skip |\n")
		sb.WriteString("|------|------|-------|---------|----------|----------------|\n")
		for i, a := range report.FlakyTests {
			v := a.Verdict
			sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s | `%s` | %d/%d/%d |\n",
				i+1, escapeMarkdown(v.TestID), v.Score, v.Pattern, v.Sequence,
				v.PassCount, v.FailCount+v.ErrorCount, v.SkipCount))
		}
		sb.WriteString("\n")

		for _, a := range report.FlakyTests {
			if len(a.Findings) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("### %s\n\n", escapeMarkdown(a.Verdict.TestID)))
			sb.WriteString("Root causes:\n\n")
			for _, f := range a.Findings {
				sb.WriteString(fmt.Sprintf("- **%s** (confidence %.0f%%)\n", f.Cause, f.Confidence*100))
				for _, ev := range f.Evidence {
					sb.WriteString(fmt.Sprintf("  - %s\n", escapeMarkdown(ev)))
				}
			}
			sb.WriteString("\n")

			if len(a.Suggestions) > 0 {
				sb.WriteString("Suggested fixes:\n\n")
				for i, s := range a.Suggestions {
					sb.WriteString(fmt.Sprintf("%d. **%s** (priority %d): %s\n", i+1, s.Title, s.Priority, s.Description))
					if s.Example != "" {
						sb.WriteString("\n```go\n")
						sb.WriteString(s.Example)
						sb.WriteString("\n```\n")
					}
				}
				sb.WriteString("\n")
			}
		}
	} else {
		sb.WriteString("No flaky tests detected.\n\n")
	}

	if len(report.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", escapeMarkdown(w)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// escapeMarkdown escapes characters that would break table rendering.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
