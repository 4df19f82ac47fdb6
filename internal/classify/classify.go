// Package classify assigns ranked root causes to flaky tests by
// combining structural source signals with the statistical shape of the
// outcome sequence and failure-message evidence.
package classify

import (
	"regexp"
	"sort"

	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/scan"
)

// causeOrder is the fixed tie-break order for equal confidences. Two
// causes can score identically on small samples, so ranking must not
// depend on map iteration.
var causeOrder = []model.Cause{
	model.CauseTimeDependent,
	model.CauseRandomDependent,
	model.CauseConcurrency,
	model.CauseOrderDependent,
	model.CauseFloatingPoint,
	model.CauseGlobalState,
	model.CauseExternalDependency,
	model.CauseUnknown,
}

var causeRank = func() map[model.Cause]int {
	m := make(map[model.Cause]int, len(causeOrder))
	for i, c := range causeOrder {
		m[c] = i
	}
	return m
}()

// prior is the per-cause base weight. Values carry over the relative
// credibility ordering of the heuristics: randomness is the strongest
// tell, unmocked I/O the weakest.
var prior = map[model.Cause]float64{
	model.CauseTimeDependent:      0.90,
	model.CauseRandomDependent:    0.95,
	model.CauseConcurrency:        0.80,
	model.CauseOrderDependent:     0.70,
	model.CauseFloatingPoint:      0.85,
	model.CauseGlobalState:        0.75,
	model.CauseExternalDependency: 0.60,
}

// consistentPatterns lists, per cause, the outcome patterns that
// corroborate it. A time-dependent bug flips back and forth or settles
// once the clock moves past a boundary; it does not steadily degrade.
var consistentPatterns = map[model.Cause][]model.Pattern{
	model.CauseTimeDependent:      {model.PatternIntermittent, model.PatternInitiallyFailing},
	model.CauseRandomDependent:    {model.PatternIntermittent, model.PatternUnclassified},
	model.CauseConcurrency:        {model.PatternIntermittent, model.PatternUnclassified},
	model.CauseOrderDependent:     {model.PatternIntermittent, model.PatternInitiallyFailing, model.PatternDegrading},
	model.CauseFloatingPoint:      {model.PatternIntermittent},
	model.CauseGlobalState:        {model.PatternDegrading, model.PatternInitiallyFailing, model.PatternIntermittent},
	model.CauseExternalDependency: {model.PatternIntermittent, model.PatternSkipFlaky, model.PatternDegrading},
}

// messagePatterns corroborate causes from failure text. Concurrency and
// floating point may trigger on messages alone: both manifest primarily
// in how an assertion fails rather than in what the test calls.
var messagePatterns = map[model.Cause][]*regexp.Regexp{
	model.CauseTimeDependent: compile(
		`(?i)timed?\s*out`, `(?i)deadline`, `(?i)expected.*\d{2}:\d{2}`, `(?i)duration`, `(?i)expire`,
	),
	model.CauseConcurrency: compile(
		`(?i)\brace\b`, `(?i)deadlock`, `(?i)\block\b`, `(?i)concurrent map`, `(?i)goroutine`,
	),
	model.CauseFloatingPoint: compile(
		`\d+\.\d{10,}`, `(?i)expected\s*:?\s*\d+\.\d+.*(got|actual|received)\s*:?\s*\d+\.\d+`,
	),
	model.CauseExternalDependency: compile(
		`(?i)connection refused`, `(?i)no such host`, `(?i)ECONNREFUSED`, `(?i)i/o timeout`, `(?i)no such file`, `(?i)network`,
	),
	model.CauseOrderDependent: compile(
		`(?i)expected\s*\[.*\].*(got|actual)\s*\[.*\]`, `(?i)order`,
	),
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// messageOnlyCauses may be raised without a structural signal.
var messageOnlyCauses = map[model.Cause]bool{
	model.CauseConcurrency:   true,
	model.CauseFloatingPoint: true,
}

// Confidence is the documented evidence-combination function:
//
//	conf = prior(cause) × (0.55 + 0.15·extraHits + 0.15·msg + 0.15·fit)
//
// where extraHits = min(hits−1, 2)/2 rewards repeated structural
// evidence, msg is 1 when failure messages corroborate the cause, and
// fit is 1 when the observed outcome pattern is consistent with it.
// The result is clamped to [0, 1].
func Confidence(cause model.Cause, hits int, msgEvidence, patternFit bool) float64 {
	base, ok := prior[cause]
	if !ok {
		return 0
	}
	extra := 0.0
	if hits > 1 {
		n := hits - 1
		if n > 2 {
			n = 2
		}
		extra = float64(n) / 2
	}
	conf := base * (0.55 + 0.15*extra + 0.15*b2f(msgEvidence) + 0.15*b2f(patternFit))
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Classify produces the ranked root-cause findings for one flaky test.
// profile may be nil (unreadable source); messages are the failure
// messages observed across the sequence. Identical inputs always yield
// identical ordered findings.
func Classify(testID string, verdict *model.FlakinessVerdict, profile *scan.Profile, messages []string) []model.RootCauseFinding {
	var findings []model.RootCauseFinding

	for _, cause := range causeOrder {
		if cause == model.CauseUnknown {
			continue
		}

		hits := profile.Hits(cause)
		msg := messagesMatch(cause, messages)
		if hits == 0 && !(msg && messageOnlyCauses[cause]) {
			continue
		}

		fit := patternConsistent(cause, verdict.Pattern)
		evidence := profile.Evidence(cause)
		if msg {
			evidence = append(evidence, "failure messages corroborate "+string(cause))
		}
		if fit {
			evidence = append(evidence, "outcome pattern "+string(verdict.Pattern)+" is consistent with "+string(cause))
		}

		findings = append(findings, model.RootCauseFinding{
			TestID:     testID,
			Cause:      cause,
			Confidence: Confidence(cause, hits, msg, fit),
			Evidence:   evidence,
		})
	}

	if len(findings) == 0 {
		// A confirmed-flaky test always yields at least one tag so the
		// suggestion stage has something to route.
		return []model.RootCauseFinding{{
			TestID:     testID,
			Cause:      model.CauseUnknown,
			Confidence: 0.1,
			Evidence:   []string{"no structural flakiness signal matched"},
		}}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Confidence != findings[j].Confidence {
			return findings[i].Confidence > findings[j].Confidence
		}
		return causeRank[findings[i].Cause] < causeRank[findings[j].Cause]
	})

	return findings
}

func messagesMatch(cause model.Cause, messages []string) bool {
	patterns := messagePatterns[cause]
	if len(patterns) == 0 {
		return false
	}
	for _, msg := range messages {
		for _, re := range patterns {
			if re.MatchString(msg) {
				return true
			}
		}
	}
	return false
}

func patternConsistent(cause model.Cause, p model.Pattern) bool {
	for _, candidate := range consistentPatterns[cause] {
		if candidate == p {
			return true
		}
	}
	return false
}
