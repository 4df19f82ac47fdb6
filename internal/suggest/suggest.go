// Package suggest maps root-cause findings to prioritized repair
// suggestions. The mapping is a static table; Suggest is a pure
// function of its input.
package suggest

import (
	"sort"

	"github.com/flakeseer/flakeseer/internal/model"
)

// table holds the per-cause suggestions, each list ordered by priority.
var table = map[model.Cause][]model.RepairSuggestion{
	model.CauseTimeDependent: {
		{
			Cause:       model.CauseTimeDependent,
			Priority:    1,
			Title:       "Inject the clock",
			Description: "Pass time in as a dependency instead of calling time.Now inside the code under test, so tests control it.",
			Example: `type Clock interface{ Now() time.Time }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestExpiry(t *testing.T) {
	clock := fixedClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	svc := NewService(clock)
	// time.Now no longer leaks into the assertion
}`,
		},
		{
			Cause:       model.CauseTimeDependent,
			Priority:    2,
			Title:       "Replace sleeps with synchronization",
			Description: "time.Sleep before an assertion races the thing it waits for; wait on a channel or poll with a deadline instead.",
			Example: `select {
case got := <-done:
	require.Equal(t, want, got)
case <-time.After(5 * time.Second):
	t.Fatal("timed out waiting for result")
}`,
		},
	},
	model.CauseRandomDependent: {
		{
			Cause:       model.CauseRandomDependent,
			Priority:    1,
			Title:       "Seed the generator",
			Description: "Use a rand.Rand with a fixed seed so every run sees the same sequence.",
			Example: `func TestShuffle(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	got := shuffle(r, input)
	require.Equal(t, want, got)
}`,
		},
		{
			Cause:       model.CauseRandomDependent,
			Priority:    2,
			Title:       "Assert properties, not values",
			Description: "When randomness is the point, assert invariants (length, membership, bounds) rather than exact outputs.",
			Example: `ids := generateIDs(100)
require.Len(t, ids, 100)
for _, id := range ids {
	require.NotEmpty(t, id)
}`,
		},
	},
	model.CauseConcurrency: {
		{
			Cause:       model.CauseConcurrency,
			Priority:    1,
			Title:       "Synchronize before asserting",
			Description: "Wait for goroutines with a WaitGroup or errgroup before reading shared results; never assert while workers may still write.",
			Example: `var wg sync.WaitGroup
for i := 0; i < n; i++ {
	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- work()
	}()
}
wg.Wait()
close(results)`,
		},
		{
			Cause:       model.CauseConcurrency,
			Priority:    1,
			Title:       "Run the race detector",
			Description: "go test -race turns latent data races into hard failures with stack traces; fix what it reports.",
			Example: `go test -race -count=20 ./...`,
		},
		{
			Cause:       model.CauseConcurrency,
			Priority:    2,
			Title:       "Guard shared state",
			Description: "Protect shared maps and counters with a mutex or replace them with channels owned by one goroutine.",
			Example: `var mu sync.Mutex
mu.Lock()
counts[key]++
mu.Unlock()`,
		},
	},
	model.CauseOrderDependent: {
		{
			Cause:       model.CauseOrderDependent,
			Priority:    1,
			Title:       "Sort before comparing",
			Description: "Map iteration order is randomized; sort keys (or use assert.ElementsMatch) before asserting on order.",
			Example: `keys := make([]string, 0, len(m))
for k := range m {
	keys = append(keys, k)
}
sort.Strings(keys)
require.Equal(t, []string{"a", "b", "c"}, keys)`,
		},
		{
			Cause:       model.CauseOrderDependent,
			Priority:    2,
			Title:       "Compare as sets",
			Description: "When order genuinely does not matter, compare element sets rather than slices.",
			Example: `assert.ElementsMatch(t, want, got)`,
		},
	},
	model.CauseFloatingPoint: {
		{
			Cause:       model.CauseFloatingPoint,
			Priority:    1,
			Title:       "Compare with a tolerance",
			Description: "Exact == on floats breaks on rounding; use require.InDelta or an epsilon comparison.",
			Example: `require.InDelta(t, 0.3, sum(0.1, 0.2), 1e-9)`,
		},
		{
			Cause:       model.CauseFloatingPoint,
			Priority:    2,
			Title:       "Avoid float accumulation in fixtures",
			Description: "Accumulating floats across iterations compounds error; compute expected values from integers where possible.",
			Example: `cents := int64(10) + int64(20)
require.Equal(t, int64(30), cents)`,
		},
	},
	model.CauseGlobalState: {
		{
			Cause:       model.CauseGlobalState,
			Priority:    1,
			Title:       "Reset state around the test",
			Description: "Save and restore package-level state with t.Cleanup, and use t.Setenv for environment variables.",
			Example: `func TestFeature(t *testing.T) {
	orig := defaultLimit
	t.Cleanup(func() { defaultLimit = orig })
	t.Setenv("FEATURE_FLAG", "on")
	// mutations no longer leak into other tests
}`,
		},
		{
			Cause:       model.CauseGlobalState,
			Priority:    2,
			Title:       "Inject instead of mutating",
			Description: "Pass configuration into constructors rather than reading package-level variables the tests must mutate.",
			Example: `svc := NewService(Config{Limit: 5})`,
		},
	},
	model.CauseExternalDependency: {
		{
			Cause:       model.CauseExternalDependency,
			Priority:    1,
			Title:       "Fake the network",
			Description: "Point the client at an httptest.Server instead of a real endpoint.",
			Example: `srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(` + "`" + `{"status":"ok"}` + "`" + `))
}))
defer srv.Close()

client := NewClient(srv.URL)`,
		},
		{
			Cause:       model.CauseExternalDependency,
			Priority:    1,
			Title:       "Use per-test temp dirs",
			Description: "t.TempDir gives each test an isolated directory that is cleaned up automatically.",
			Example: `path := filepath.Join(t.TempDir(), "state.json")
require.NoError(t, os.WriteFile(path, data, 0644))`,
		},
		{
			Cause:       model.CauseExternalDependency,
			Priority:    2,
			Title:       "Put I/O behind an interface",
			Description: "Depend on a narrow interface for storage/transport and substitute an in-memory implementation in tests.",
			Example: `type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, val []byte) error
}`,
		},
	},
}

// generic is returned for unknown or unrecognized causes so callers
// always receive something actionable.
var generic = model.RepairSuggestion{
	Cause:       model.CauseUnknown,
	Priority:    3,
	Title:       "Re-run under instrumentation",
	Description: "No structural signal matched. Re-run with -race and -count=50, capture verbose logs, and diff a passing run against a failing one.",
	Example:     `go test -race -count=50 -v ./pkg/... 2>&1 | tee runs.log`,
}

// Suggest maps ranked findings to a prioritized suggestion list.
// Suggestions from all causes are concatenated and stably re-sorted by
// priority, so equal-priority suggestions keep the relative order of
// the findings that produced them.
func Suggest(findings []model.RootCauseFinding) []model.RepairSuggestion {
	var out []model.RepairSuggestion
	seen := make(map[string]bool)

	for _, f := range findings {
		entries, ok := table[f.Cause]
		if !ok {
			entries = []model.RepairSuggestion{generic}
		}
		for _, s := range entries {
			if seen[s.Title] {
				continue
			}
			seen[s.Title] = true
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})

	return out
}
