// Package model defines shared data types for flakeseer.
package model

import "time"

// Outcome represents the result of a single test execution.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeSkip  Outcome = "skip"
	OutcomeError Outcome = "error"
)

// Symbol returns the single-byte rendering of an outcome used in
// sequence strings: P, F, S or E.
func (o Outcome) Symbol() byte {
	switch o {
	case OutcomePass:
		return 'P'
	case OutcomeFail:
		return 'F'
	case OutcomeSkip:
		return 'S'
	case OutcomeError:
		return 'E'
	}
	return '?'
}

// Pattern describes the shape of a test's outcome sequence over time.
type Pattern string

const (
	PatternStable           Pattern = "stable"
	PatternAlwaysFailing    Pattern = "always_failing"
	PatternInitiallyFailing Pattern = "initially_failing"
	PatternIntermittent     Pattern = "intermittent"
	PatternDegrading        Pattern = "degrading"
	PatternSkipFlaky        Pattern = "skip_flaky"
	PatternUnclassified     Pattern = "unclassified"
	PatternInsufficientData Pattern = "insufficient_data"
)

// Cause is a categorical label naming a structural reason a test is
// likely flaky.
type Cause string

const (
	CauseTimeDependent      Cause = "time_dependent"
	CauseRandomDependent    Cause = "random_dependent"
	CauseConcurrency        Cause = "concurrency"
	CauseOrderDependent     Cause = "order_dependent"
	CauseFloatingPoint      Cause = "floating_point"
	CauseGlobalState        Cause = "global_state"
	CauseExternalDependency Cause = "external_dependency"
	CauseUnknown            Cause = "unknown"
)

// RunOutcome is one observation of one test in one run. Immutable once
// recorded.
type RunOutcome struct {
	TestID         string        `json:"testId"`
	Outcome        Outcome       `json:"outcome"`
	Duration       time.Duration `json:"duration"`
	FailureMessage string        `json:"failureMessage,omitempty"`
	RunIndex       int           `json:"runIndex"`
}

// OutcomeSequence holds the observations of one test across all runs of
// a session, ordered by run index.
type OutcomeSequence []RunOutcome

// Rendering returns the sequence as a compact symbol string, e.g. "PFPFP".
func (s OutcomeSequence) Rendering() string {
	b := make([]byte, len(s))
	for i, o := range s {
		b[i] = o.Outcome.Symbol()
	}
	return string(b)
}

// FailureMessages returns the non-empty failure messages of the
// sequence's fail and error outcomes, in run order.
func (s OutcomeSequence) FailureMessages() []string {
	var msgs []string
	for _, o := range s {
		if (o.Outcome == OutcomeFail || o.Outcome == OutcomeError) && o.FailureMessage != "" {
			msgs = append(msgs, o.FailureMessage)
		}
	}
	return msgs
}

// TestResult represents the outcome of a single test in a single run,
// as parsed from a run report.
type TestResult struct {
	TestID         string        `json:"testId"`
	Outcome        Outcome       `json:"outcome"`
	Duration       time.Duration `json:"duration"`
	FailureMessage string        `json:"failureMessage,omitempty"`
}

// RunResult represents the parsed results of a single test run. Error
// is set when the run itself failed (timeout, crash, unreadable report);
// such a run contributes a synthetic error outcome to every sequence.
type RunResult struct {
	RunIndex int          `json:"runIndex"`
	Tests    []TestResult `json:"tests"`
	Error    string       `json:"error,omitempty"`
}

// FlakinessVerdict is the scorer's immutable per-test verdict. Score is
// 0-100, highest at a 50/50 pass/fail split.
type FlakinessVerdict struct {
	TestID     string  `json:"testId"`
	Score      int     `json:"score"`
	Pattern    Pattern `json:"pattern"`
	PassCount  int     `json:"passCount"`
	FailCount  int     `json:"failCount"`
	SkipCount  int     `json:"skipCount"`
	ErrorCount int     `json:"errorCount"`
	TotalRuns  int     `json:"totalRuns"`
	Sequence   string  `json:"sequence"`
}

// Flaky reports whether the verdict identifies a flaky test. Stable and
// deterministically failing tests are not flaky, nor are tests with too
// few runs to tell.
func (v *FlakinessVerdict) Flaky() bool {
	switch v.Pattern {
	case PatternStable, PatternAlwaysFailing, PatternInsufficientData:
		return false
	}
	return true
}

// RootCauseFinding names one likely cause of a test's flakiness, with a
// bounded confidence and the evidence that produced it.
type RootCauseFinding struct {
	TestID     string   `json:"testId"`
	Cause      Cause    `json:"cause"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// RepairSuggestion is one advisory fix for a cause. Priority 1 is
// highest.
type RepairSuggestion struct {
	Cause       Cause  `json:"cause"`
	Priority    int    `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// TestAnalysis bundles everything the pipeline produced for one test.
type TestAnalysis struct {
	Verdict     FlakinessVerdict   `json:"verdict"`
	Findings    []RootCauseFinding `json:"findings,omitempty"`
	Suggestions []RepairSuggestion `json:"suggestions,omitempty"`
}

// Report is the top-level structure for a detection session's output.
type Report struct {
	Target             string         `json:"target"`
	Adapter            string         `json:"adapter"`
	RunsExecuted       int            `json:"runsExecuted"`
	TotalTests         int            `json:"totalTests"`
	StableCount        int            `json:"stableCount"`
	FlakyCount         int            `json:"flakyCount"`
	AlwaysFailingCount int            `json:"alwaysFailingCount"`
	FlakinessRate      float64        `json:"flakinessRate"`
	Tests              []TestAnalysis `json:"tests"`
	FlakyTests         []TestAnalysis `json:"flakyTests"`
	Warnings           []string       `json:"warnings,omitempty"`
}

// Adapter defines the interface that test-runner adapters implement.
type Adapter interface {
	// Name returns the adapter name for reporting.
	Name() string

	// BuildCommand returns the command to execute one run of target,
	// with the machine-readable report directed into runDir.
	BuildCommand(runDir, target string) []string

	// Parse reads the report artifact from runDir and returns test results.
	Parse(runDir string) (*RunResult, error)

	// ExpectedArtifact returns the path of the report artifact for verification.
	ExpectedArtifact(runDir string) string

	// SourceFile maps a test identity back to the source file that
	// defines it, relative to the target. Empty when unknown.
	SourceFile(testID string) string

	// TestName extracts the bare test function name from a test identity.
	TestName(testID string) string
}
