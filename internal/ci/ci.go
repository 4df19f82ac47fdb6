// Package ci detects flaky tests from historical CI executions instead
// of live reruns. Pipeline logs are fetched from GitHub Actions or
// GitLab CI, parsed into per-test outcome histories and scored with the
// same scorer the live detector uses.
package ci

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/score"
)

// DefaultMinRuns is the minimum observations required before a test's
// history is scored; below it the sample says nothing.
const DefaultMinRuns = 3

// DefaultMaxRuns caps how many CI runs are fetched per analysis, to
// stay inside API quotas.
const DefaultMaxRuns = 20

// History accumulates one test's outcomes across CI runs, in the order
// the runs were observed.
type History struct {
	TestName string
	Sequence model.OutcomeSequence
	Branches map[string]bool
}

// Histories maps test name to accumulated history.
type Histories map[string]*History

func (h Histories) record(testName string, outcome model.Outcome, runIndex int, branch string) {
	hist, ok := h[testName]
	if !ok {
		hist = &History{TestName: testName, Branches: make(map[string]bool)}
		h[testName] = hist
	}
	hist.Sequence = append(hist.Sequence, model.RunOutcome{
		TestID:   testName,
		Outcome:  outcome,
		RunIndex: runIndex,
	})
	if branch != "" {
		hist.Branches[branch] = true
	}
}

// Verdicts scores each history with at least minRuns observations and
// returns the verdicts ranked by score descending, ties by test name.
func (h Histories) Verdicts(minRuns int) ([]model.FlakinessVerdict, error) {
	if minRuns < 1 {
		minRuns = DefaultMinRuns
	}

	var out []model.FlakinessVerdict
	for _, hist := range h {
		if len(hist.Sequence) < minRuns {
			continue
		}
		v, err := score.Score(hist.Sequence)
		if err != nil {
			return nil, fmt.Errorf("score history of %s: %w", hist.TestName, err)
		}
		out = append(out, *v)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TestID < out[j].TestID
	})
	return out, nil
}

// Log line shapes recognized in CI output. Go's verbose test output and
// pytest's -v output both appear in the wild.
var (
	goResultRe     = regexp.MustCompile(`^\s*--- (PASS|FAIL|SKIP): ([A-Za-z0-9_/#-]+)`)
	pytestResultRe = regexp.MustCompile(`^([^\s:]+::[^\s]+)\s+(PASSED|FAILED|SKIPPED|ERROR)\b`)
)

// ParseTestLog extracts per-test outcomes from a raw CI job log.
// Unrecognized lines are skipped; a test reported twice in one log
// keeps its last outcome.
func ParseTestLog(logs string) map[string]model.Outcome {
	results := make(map[string]model.Outcome)

	for _, line := range strings.Split(logs, "\n") {
		// CI systems often prefix log lines with timestamps.
		line = stripTimestamp(line)

		if m := goResultRe.FindStringSubmatch(line); m != nil {
			results[m[2]] = mapGoStatus(m[1])
			continue
		}
		if m := pytestResultRe.FindStringSubmatch(line); m != nil {
			results[m[1]] = mapPytestStatus(m[2])
		}
	}

	return results
}

var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T[0-9:.]+Z?\s+`)

func stripTimestamp(line string) string {
	return timestampRe.ReplaceAllString(line, "")
}

func mapGoStatus(s string) model.Outcome {
	switch s {
	case "PASS":
		return model.OutcomePass
	case "FAIL":
		return model.OutcomeFail
	case "SKIP":
		return model.OutcomeSkip
	}
	return model.OutcomeError
}

func mapPytestStatus(s string) model.Outcome {
	switch s {
	case "PASSED":
		return model.OutcomePass
	case "FAILED":
		return model.OutcomeFail
	case "SKIPPED":
		return model.OutcomeSkip
	}
	return model.OutcomeError
}
