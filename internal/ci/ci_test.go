package ci

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flakeseer/flakeseer/internal/model"
)

func TestParseTestLogGoOutput(t *testing.T) {
	logs := `=== RUN   TestCheckout
--- PASS: TestCheckout (0.02s)
=== RUN   TestCheckout/empty_cart
    --- FAIL: TestCheckout/empty_cart (0.01s)
--- SKIP: TestLegacyImport (0.00s)
ok  	example.com/shop	0.145s
`
	results := ParseTestLog(logs)

	assert.Equal(t, model.OutcomePass, results["TestCheckout"])
	assert.Equal(t, model.OutcomeFail, results["TestCheckout/empty_cart"])
	assert.Equal(t, model.OutcomeSkip, results["TestLegacyImport"])
	assert.Len(t, results, 3)
}

func TestParseTestLogPytestOutput(t *testing.T) {
	logs := `tests/test_cart.py::test_checkout PASSED                         [ 33%]
tests/test_cart.py::test_refund FAILED                           [ 66%]
tests/test_cart.py::test_import SKIPPED (legacy)                 [100%]
`
	results := ParseTestLog(logs)

	assert.Equal(t, model.OutcomePass, results["tests/test_cart.py::test_checkout"])
	assert.Equal(t, model.OutcomeFail, results["tests/test_cart.py::test_refund"])
	assert.Equal(t, model.OutcomeSkip, results["tests/test_cart.py::test_import"])
}

func TestParseTestLogStripsTimestamps(t *testing.T) {
	logs := "2026-03-14T10:22:01.1234567Z --- FAIL: TestRetry (1.20s)\n"

	results := ParseTestLog(logs)

	assert.Equal(t, model.OutcomeFail, results["TestRetry"])
}

func TestParseTestLogLastOutcomeWins(t *testing.T) {
	logs := "--- FAIL: TestRace (0.10s)\n--- PASS: TestRace (0.10s)\n"

	results := ParseTestLog(logs)

	assert.Equal(t, model.OutcomePass, results["TestRace"])
}

func TestHistoriesVerdictsFiltersShortHistories(t *testing.T) {
	h := make(Histories)
	h.record("TestShort", model.OutcomePass, 0, "main")
	h.record("TestShort", model.OutcomeFail, 1, "main")

	h.record("TestLong", model.OutcomePass, 0, "main")
	h.record("TestLong", model.OutcomeFail, 1, "main")
	h.record("TestLong", model.OutcomePass, 2, "main")

	verdicts, err := h.Verdicts(3)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)

	assert.Equal(t, "TestLong", verdicts[0].TestID)
	assert.Equal(t, model.PatternIntermittent, verdicts[0].Pattern)
	assert.Equal(t, "PFP", verdicts[0].Sequence)
}

func TestHistoriesVerdictsRanking(t *testing.T) {
	h := make(Histories)
	for i, o := range []model.Outcome{model.OutcomePass, model.OutcomePass, model.OutcomePass} {
		h.record("TestStable", o, i, "main")
	}
	for i, o := range []model.Outcome{model.OutcomePass, model.OutcomeFail, model.OutcomePass} {
		h.record("TestFlaky", o, i, "main")
	}

	verdicts, err := h.Verdicts(0)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.Equal(t, "TestFlaky", verdicts[0].TestID)
	assert.Equal(t, "TestStable", verdicts[1].TestID)
	assert.Greater(t, verdicts[0].Score, verdicts[1].Score)
}

func TestGitHubAnalyze(t *testing.T) {
	// Two completed runs, newest first as the API returns them. The
	// flaky test fails in the older run and passes in the newer one.
	logsByRun := map[string]string{
		"101": "--- FAIL: TestPayment (0.2s)\n--- PASS: TestCart (0.1s)\n",
		"102": "--- PASS: TestPayment (0.2s)\n--- PASS: TestCart (0.1s)\n",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "main", r.URL.Query().Get("branch"))
		fmt.Fprint(w, `{"workflow_runs":[
			{"id":102,"run_number":2,"name":"CI","head_branch":"main","status":"completed","created_at":"2026-03-02T00:00:00Z"},
			{"id":101,"run_number":1,"name":"CI","head_branch":"main","status":"completed","created_at":"2026-03-01T00:00:00Z"}
		]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/actions/runs/101/jobs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobs":[{"id":201,"name":"test"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/actions/runs/102/jobs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobs":[{"id":202,"name":"test"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/actions/jobs/201/logs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, logsByRun["101"])
	})
	mux.HandleFunc("/repos/acme/widgets/actions/jobs/202/logs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, logsByRun["102"])
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGitHub("acme/widgets", "tok")
	client.BaseURL = srv.URL

	histories, err := client.Analyze(context.Background(), "main", 7, 0)
	require.NoError(t, err)
	require.Len(t, histories, 2)

	// Oldest run first, so the payment test reads FAIL then PASS.
	assert.Equal(t, "FP", histories["TestPayment"].Sequence.Rendering())
	assert.Equal(t, "PP", histories["TestCart"].Sequence.Rendering())
	assert.True(t, histories["TestPayment"].Branches["main"])
}

func TestGitHubAnalyzeMaxRunsKeepsNewest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"workflow_runs":[
			{"id":103,"run_number":3,"head_branch":"main","status":"completed","created_at":"2026-03-03T00:00:00Z"},
			{"id":102,"run_number":2,"head_branch":"main","status":"completed","created_at":"2026-03-02T00:00:00Z"},
			{"id":101,"run_number":1,"head_branch":"main","status":"completed","created_at":"2026-03-01T00:00:00Z"}
		]}`)
	})
	var fetched []string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fetched = append(fetched, r.URL.Path)
		fmt.Fprint(w, `{"jobs":[]}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGitHub("acme/widgets", "")
	client.BaseURL = srv.URL

	_, err := client.Analyze(context.Background(), "", 7, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/repos/acme/widgets/actions/runs/102/jobs",
		"/repos/acme/widgets/actions/runs/103/jobs",
	}, fetched)
}

func TestGitLabAnalyze(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/42/pipelines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("PRIVATE-TOKEN"))
		fmt.Fprint(w, `[
			{"id":12,"ref":"main","status":"success","created_at":"2026-03-02T00:00:00Z"},
			{"id":11,"ref":"main","status":"failed","created_at":"2026-03-01T00:00:00Z"},
			{"id":10,"ref":"main","status":"running","created_at":"2026-03-01T00:00:00Z"}
		]`)
	})
	mux.HandleFunc("/api/v4/projects/42/pipelines/11/jobs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":31,"name":"unit-tests","stage":"test"},{"id":32,"name":"deploy","stage":"deploy"}]`)
	})
	mux.HandleFunc("/api/v4/projects/42/pipelines/12/jobs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":33,"name":"unit-tests","stage":"test"}]`)
	})
	mux.HandleFunc("/api/v4/projects/42/jobs/31/trace", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tests/test_api.py::test_fetch FAILED\n")
	})
	mux.HandleFunc("/api/v4/projects/42/jobs/33/trace", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tests/test_api.py::test_fetch PASSED\n")
	})
	var deployFetched bool
	mux.HandleFunc("/api/v4/projects/42/jobs/32/trace", func(w http.ResponseWriter, r *http.Request) {
		deployFetched = true
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGitLab("42", "tok")
	client.BaseURL = srv.URL

	histories, err := client.Analyze(context.Background(), "main", 7, 0)
	require.NoError(t, err)
	require.Len(t, histories, 1)

	// Running pipeline 10 is ignored, deploy job trace never fetched.
	assert.Equal(t, "FP", histories["tests/test_api.py::test_fetch"].Sequence.Rendering())
	assert.False(t, deployFetched)
}

func TestGitHubAnalyzeListError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewGitHub("acme/widgets", "bad")
	client.BaseURL = srv.URL

	_, err := client.Analyze(context.Background(), "", 7, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list workflow runs")
}
