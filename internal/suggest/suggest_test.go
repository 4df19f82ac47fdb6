package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flakeseer/flakeseer/internal/model"
)

func finding(c model.Cause) model.RootCauseFinding {
	return model.RootCauseFinding{TestID: "pkg/TestX", Cause: c, Confidence: 0.8}
}

func TestSuggestSingleCause(t *testing.T) {
	got := Suggest([]model.RootCauseFinding{finding(model.CauseRandomDependent)})

	require.Len(t, got, 2)
	assert.Equal(t, "Seed the generator", got[0].Title)
	assert.Equal(t, 1, got[0].Priority)
	assert.Equal(t, 2, got[1].Priority)
}

func TestSuggestUnknownCauseYieldsGeneric(t *testing.T) {
	got := Suggest([]model.RootCauseFinding{finding(model.CauseUnknown)})

	require.Len(t, got, 1)
	assert.Equal(t, "Re-run under instrumentation", got[0].Title)
}

func TestSuggestUnrecognizedCauseYieldsGeneric(t *testing.T) {
	got := Suggest([]model.RootCauseFinding{finding(model.Cause("cosmic_rays"))})

	require.Len(t, got, 1)
	assert.Equal(t, model.CauseUnknown, got[0].Cause)
}

func TestSuggestEmptyFindings(t *testing.T) {
	assert.Empty(t, Suggest(nil))
}

func TestSuggestMergesAndSortsByPriority(t *testing.T) {
	got := Suggest([]model.RootCauseFinding{
		finding(model.CauseTimeDependent),
		finding(model.CauseConcurrency),
	})

	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Priority, got[i-1].Priority)
	}
}

func TestSuggestStableAcrossEqualPriorities(t *testing.T) {
	// Cause rank of the input findings decides the order of
	// equal-priority suggestions: time first here, concurrency first below.
	timeFirst := Suggest([]model.RootCauseFinding{
		finding(model.CauseTimeDependent),
		finding(model.CauseConcurrency),
	})
	concFirst := Suggest([]model.RootCauseFinding{
		finding(model.CauseConcurrency),
		finding(model.CauseTimeDependent),
	})

	assert.Equal(t, "Inject the clock", timeFirst[0].Title)
	assert.Equal(t, "Synchronize before asserting", concFirst[0].Title)

	// Same multiset either way.
	titles := func(s []model.RepairSuggestion) map[string]bool {
		m := make(map[string]bool)
		for _, x := range s {
			m[x.Title] = true
		}
		return m
	}
	assert.Equal(t, titles(timeFirst), titles(concFirst))
}

func TestSuggestDeduplicatesRepeatedCauses(t *testing.T) {
	got := Suggest([]model.RootCauseFinding{
		finding(model.CauseFloatingPoint),
		finding(model.CauseFloatingPoint),
	})

	assert.Len(t, got, len(Suggest([]model.RootCauseFinding{finding(model.CauseFloatingPoint)})))
}
