// Package score computes flakiness verdicts from outcome sequences.
package score

import (
	"fmt"
	"math"

	"github.com/flakeseer/flakeseer/internal/model"
)

// InvalidSequenceError signals a malformed outcome sequence. The test
// it belongs to is excluded from the report with a warning; the session
// continues.
type InvalidSequenceError struct {
	TestID string
	Reason string
}

func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid outcome sequence for %s: %s", e.TestID, e.Reason)
}

// Score derives the immutable flakiness verdict for one test from its
// ordered outcome sequence.
//
// The score is 100 × (1 − |p − f|) where p and f are the pass and
// fail proportions of the sequence (errors count as failures), so a
// 50/50 split scores 100 and the score decreases monotonically as one
// outcome dominates. Stable and deterministically failing tests score 0.
func Score(seq model.OutcomeSequence) (*model.FlakinessVerdict, error) {
	if len(seq) == 0 {
		return nil, &InvalidSequenceError{Reason: "empty sequence"}
	}

	testID := seq[0].TestID
	var pass, fail, skip, errc int
	for _, o := range seq {
		switch o.Outcome {
		case model.OutcomePass:
			pass++
		case model.OutcomeFail:
			fail++
		case model.OutcomeSkip:
			skip++
		case model.OutcomeError:
			errc++
		default:
			return nil, &InvalidSequenceError{
				TestID: testID,
				Reason: fmt.Sprintf("unknown outcome %q at run %d", o.Outcome, o.RunIndex),
			}
		}
		if o.TestID != testID {
			return nil, &InvalidSequenceError{
				TestID: testID,
				Reason: fmt.Sprintf("mixed test identities (%s vs %s)", testID, o.TestID),
			}
		}
	}

	v := &model.FlakinessVerdict{
		TestID:     testID,
		PassCount:  pass,
		FailCount:  fail,
		SkipCount:  skip,
		ErrorCount: errc,
		TotalRuns:  len(seq),
		Sequence:   seq.Rendering(),
	}

	failing := fail + errc

	switch {
	case len(seq) == 1:
		// One run cannot establish flakiness either way.
		v.Pattern = model.PatternInsufficientData
	case failing == 0 && pass > 0:
		v.Pattern = model.PatternStable
	case pass == 0 && failing > 0 && skip == 0:
		v.Pattern = model.PatternAlwaysFailing
	case pass == 0 && failing == 0:
		// Nothing but skips; no observations to judge.
		v.Pattern = model.PatternInsufficientData
	default:
		total := float64(len(seq))
		p := float64(pass) / total
		f := float64(failing) / total
		v.Score = clampScore(math.Round(100 * (1 - math.Abs(p-f))))
		v.Pattern = pattern(seq)
	}

	return v, nil
}

// pattern classifies the transition structure of a flaky sequence.
// Skips interleaved with pass/fail dominate; otherwise exactly one
// transition means a stabilizing or degrading shape and more than one
// means intermittent.
func pattern(seq model.OutcomeSequence) model.Pattern {
	var symbols []byte
	sawSkip := false
	for _, o := range seq {
		switch o.Outcome {
		case model.OutcomeSkip:
			sawSkip = true
		case model.OutcomePass:
			symbols = append(symbols, 'P')
		default: // fail and error project onto F
			symbols = append(symbols, 'F')
		}
	}
	if sawSkip {
		return model.PatternSkipFlaky
	}
	if len(symbols) < 2 {
		return model.PatternUnclassified
	}

	transitions := 0
	for i := 1; i < len(symbols); i++ {
		if symbols[i] != symbols[i-1] {
			transitions++
		}
	}

	switch {
	case transitions == 1 && symbols[0] == 'F':
		return model.PatternInitiallyFailing
	case transitions == 1 && symbols[0] == 'P':
		return model.PatternDegrading
	case transitions > 1:
		return model.PatternIntermittent
	}
	return model.PatternUnclassified
}

func clampScore(s float64) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return int(s)
}
