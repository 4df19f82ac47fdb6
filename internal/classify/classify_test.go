package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/scan"
)

const unseededRandomSource = `package demo

import (
	"math/rand"
	"testing"
)

func TestPickWinner(t *testing.T) {
	winner := rand.Intn(2)
	if winner != 0 {
		t.Fatal("lost")
	}
}
`

func intermittentVerdict(testID string) *model.FlakinessVerdict {
	return &model.FlakinessVerdict{
		TestID:    testID,
		Score:     100,
		Pattern:   model.PatternIntermittent,
		PassCount: 5,
		FailCount: 5,
		TotalRuns: 10,
		Sequence:  "PFPFPFPFPF",
	}
}

func TestClassifyUnseededRandomTopRanked(t *testing.T) {
	profile := scan.Scan("demo_test.go", []byte(unseededRandomSource), "TestPickWinner")
	verdict := intermittentVerdict("demo/TestPickWinner")

	findings := Classify(verdict.TestID, verdict, profile, []string{"lost"})

	require.NotEmpty(t, findings)
	assert.Equal(t, model.CauseRandomDependent, findings[0].Cause)
	// structural hit + consistent near-50/50 pattern = high confidence
	assert.Greater(t, findings[0].Confidence, 0.6)
	assert.NotEmpty(t, findings[0].Evidence)
}

func TestClassifyDeterministic(t *testing.T) {
	profile := scan.Scan("demo_test.go", []byte(unseededRandomSource), "TestPickWinner")
	verdict := intermittentVerdict("demo/TestPickWinner")
	msgs := []string{"lost", "race detected during execution"}

	first := Classify(verdict.TestID, verdict, profile, msgs)
	for i := 0; i < 10; i++ {
		again := Classify(verdict.TestID, verdict, profile, msgs)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("classification not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestClassifyNoSignalsYieldsUnknown(t *testing.T) {
	verdict := intermittentVerdict("pkg/TestOpaque")

	findings := Classify(verdict.TestID, verdict, nil, nil)

	require.Len(t, findings, 1)
	assert.Equal(t, model.CauseUnknown, findings[0].Cause)
	assert.InDelta(t, 0.1, findings[0].Confidence, 1e-9)
}

func TestClassifyMessageOnlyCauses(t *testing.T) {
	verdict := intermittentVerdict("pkg/TestMsgs")

	tests := []struct {
		name    string
		message string
		cause   model.Cause
	}{
		{"race term", "WARNING: DATA RACE on goroutine 7", model.CauseConcurrency},
		{"deadlock term", "fatal error: all goroutines are asleep - deadlock!", model.CauseConcurrency},
		{"float near miss", "expected 0.3, got 0.30000000000000004", model.CauseFloatingPoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Classify(verdict.TestID, verdict, nil, []string{tt.message})
			require.NotEmpty(t, findings)
			assert.Equal(t, tt.cause, findings[0].Cause)
		})
	}
}

func TestClassifyExternalMessageAloneDoesNotTrigger(t *testing.T) {
	// external_dependency needs a structural signal; a network-looking
	// message without one falls through to unknown.
	verdict := intermittentVerdict("pkg/TestNet")

	findings := Classify(verdict.TestID, verdict, nil, []string{"dial tcp: connection refused"})

	require.Len(t, findings, 1)
	assert.Equal(t, model.CauseUnknown, findings[0].Cause)
}

func TestConfidenceFunction(t *testing.T) {
	tests := []struct {
		name  string
		cause model.Cause
		hits  int
		msg   bool
		fit   bool
		want  float64
	}{
		{"bare hit", model.CauseTimeDependent, 1, false, false, 0.90 * 0.55},
		{"hit with message", model.CauseTimeDependent, 1, true, false, 0.90 * 0.70},
		{"full evidence", model.CauseRandomDependent, 3, true, true, 0.95 * 1.00},
		{"two hits half extra", model.CauseConcurrency, 2, false, false, 0.80 * 0.625},
		{"hits capped", model.CauseRandomDependent, 50, false, false, 0.95 * 0.70},
		{"unknown cause scores zero", model.CauseUnknown, 5, true, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.cause, tt.hits, tt.msg, tt.fit), 1e-9)
		})
	}
}

func TestConfidencePatternFitRaisesRanking(t *testing.T) {
	low := Confidence(model.CauseTimeDependent, 1, false, false)
	high := Confidence(model.CauseTimeDependent, 1, false, true)
	assert.Greater(t, high, low)
}

func TestClassifyTieBreakIsFixedOrder(t *testing.T) {
	// Equal evidence for two causes with equal priors would be fragile;
	// instead verify the documented order on a synthetic equal-confidence
	// pair by checking the comparator's inputs: same confidence sorts by
	// the fixed cause order.
	src := `package demo

import (
	"testing"
	"time"
)

var shared int

func TestBoth(t *testing.T) {
	_ = time.Now()
	shared = 1
}
`
	profile := scan.Scan("demo_test.go", []byte(src), "TestBoth")
	verdict := &model.FlakinessVerdict{
		TestID:    "demo/TestBoth",
		Pattern:   model.PatternUnclassified,
		TotalRuns: 4,
	}

	findings := Classify(verdict.TestID, verdict, profile, nil)
	require.Len(t, findings, 2)
	// time prior (0.90) beats global_state (0.75) with identical flags
	assert.Equal(t, model.CauseTimeDependent, findings[0].Cause)
	assert.Equal(t, model.CauseGlobalState, findings[1].Cause)
}
