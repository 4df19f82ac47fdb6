// Package detect composes the analysis pipeline: outcome sequences from
// the runner flow through the scorer, the root-cause classifier and the
// suggestion generator into a session report.
package detect

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/flakeseer/flakeseer/internal/classify"
	"github.com/flakeseer/flakeseer/internal/logging"
	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/runner"
	"github.com/flakeseer/flakeseer/internal/scan"
	"github.com/flakeseer/flakeseer/internal/score"
	"github.com/flakeseer/flakeseer/internal/suggest"
)

// Options controls the optional analysis stages.
type Options struct {
	Analyze bool
	Suggest bool
}

// BuildReport turns a session's collected sequences into the final
// report. Analysis-level failures (invalid sequences, unreadable
// source) degrade per test and surface as warnings.
func BuildReport(target string, adapter model.Adapter, res *runner.Result, opts Options) *model.Report {
	log := logging.New("detect")

	rpt := &model.Report{
		Target:       target,
		Adapter:      adapter.Name(),
		RunsExecuted: res.RunsExecuted,
		Warnings:     append([]string(nil), res.Warnings...),
	}

	ids := make([]string, 0, len(res.Sequences))
	for id := range res.Sequences {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		seq := res.Sequences[id]

		verdict, err := score.Score(seq)
		if err != nil {
			log.Warn("excluding test from report", "test", id, "error", err)
			rpt.Warnings = append(rpt.Warnings, err.Error())
			continue
		}

		analysis := model.TestAnalysis{Verdict: *verdict}

		if verdict.Flaky() && opts.Analyze {
			profile := profileFor(target, adapter, id)
			analysis.Findings = classify.Classify(id, verdict, profile, seq.FailureMessages())
			if opts.Suggest {
				analysis.Suggestions = suggest.Suggest(analysis.Findings)
			}
		}

		rpt.Tests = append(rpt.Tests, analysis)

		switch verdict.Pattern {
		case model.PatternStable:
			rpt.StableCount++
		case model.PatternAlwaysFailing:
			rpt.AlwaysFailingCount++
		}
		if verdict.Flaky() {
			rpt.FlakyCount++
		}
	}

	rpt.TotalTests = len(rpt.Tests)
	if rpt.TotalTests > 0 {
		rpt.FlakinessRate = float64(rpt.FlakyCount) / float64(rpt.TotalTests)
	}

	// rank flaky tests by severity for the report's focus list
	for _, a := range rpt.Tests {
		if a.Verdict.Flaky() {
			rpt.FlakyTests = append(rpt.FlakyTests, a)
		}
	}
	sort.SliceStable(rpt.FlakyTests, func(i, j int) bool {
		if rpt.FlakyTests[i].Verdict.Score != rpt.FlakyTests[j].Verdict.Score {
			return rpt.FlakyTests[i].Verdict.Score > rpt.FlakyTests[j].Verdict.Score
		}
		return rpt.FlakyTests[i].Verdict.TestID < rpt.FlakyTests[j].Verdict.TestID
	})

	return rpt
}

// profileFor locates and scans the source of one test. Adapters that
// embed the file in the identity resolve directly; otherwise the target
// tree is searched for the defining test file.
func profileFor(target string, adapter model.Adapter, testID string) *scan.Profile {
	testName := adapter.TestName(testID)

	if rel := adapter.SourceFile(testID); rel != "" {
		for _, candidate := range []string{
			rel,
			filepath.Join(target, rel),
			filepath.Join(filepath.Dir(target), rel),
		} {
			if src, err := os.ReadFile(candidate); err == nil {
				return scan.Scan(candidate, src, testName)
			}
		}
	}

	path, src := scan.FindTestSource(target, testName)
	if path == "" {
		return nil // classification degrades to unknown
	}
	return scan.Scan(path, src, testName)
}
