// Package gotest implements the flakeseer adapter for go test.
package gotest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flakeseer/flakeseer/internal/model"
)

// artifactFilename is where the executor captures the -json event
// stream (go test writes it to stdout).
const artifactFilename = "stdout.txt"

// Adapter implements model.Adapter for go test.
type Adapter struct{}

// New creates a new go test adapter.
func New() *Adapter {
	return &Adapter{}
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return "gotest" }

// BuildCommand returns the go test invocation for target. -count=1
// defeats the test cache (a cached pass would hide flakiness) and
// -json selects the machine-readable event stream.
func (a *Adapter) BuildCommand(runDir, target string) []string {
	pkg := target
	if info, err := os.Stat(target); err == nil && info.IsDir() && !filepath.IsAbs(target) {
		// a bare relative dir like "internal/cache" is not a valid
		// package arg without the ./ prefix
		pkg = "./" + filepath.ToSlash(filepath.Clean(target))
	}
	return []string{"go", "test", "-json", "-count=1", pkg}
}

// ExpectedArtifact returns the captured event stream path.
func (a *Adapter) ExpectedArtifact(runDir string) string {
	return filepath.Join(runDir, artifactFilename)
}

// event is one test2json record.
type event struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// testState accumulates events for one test across the stream.
type testState struct {
	outcome  model.Outcome
	elapsed  float64
	output   strings.Builder
	terminal bool
}

// Parse reads the -json event stream from runDir and returns test
// results. Non-JSON lines (build output, panics outside the harness)
// are ignored; a stream with no test events at all is an error.
func (a *Adapter) Parse(runDir string) (*model.RunResult, error) {
	path := a.ExpectedArtifact(runDir)

	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Action:  "Ensure go test completed and its output was captured.",
		}
	}
	defer f.Close()

	states := make(map[string]*testState)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Test == "" {
			continue // package-level event
		}

		id := ev.Package + "/" + ev.Test
		st, ok := states[id]
		if !ok {
			st = &testState{}
			states[id] = st
		}

		switch ev.Action {
		case "output":
			// cap retained output per test
			if st.output.Len() < 4096 {
				st.output.WriteString(ev.Output)
			}
		case "pass":
			st.outcome, st.elapsed, st.terminal = model.OutcomePass, ev.Elapsed, true
		case "fail":
			st.outcome, st.elapsed, st.terminal = model.OutcomeFail, ev.Elapsed, true
		case "skip":
			st.outcome, st.elapsed, st.terminal = model.OutcomeSkip, ev.Elapsed, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to scan event stream: %v", err),
			Action:  "The captured output may be truncated; re-run the session.",
		}
	}

	if len(states) == 0 {
		return nil, &ParseError{
			File:    path,
			Message: "no test events found in output",
			Action:  "Ensure the target contains tests and the package builds.",
		}
	}

	result := &model.RunResult{}
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		st := states[id]
		tr := model.TestResult{
			TestID:   id,
			Duration: time.Duration(st.elapsed * float64(time.Second)),
		}
		switch {
		case !st.terminal:
			// started but never finished: the run crashed under it
			tr.Outcome = model.OutcomeError
			tr.FailureMessage = truncate(st.output.String())
		case st.outcome == model.OutcomeFail:
			tr.Outcome = model.OutcomeFail
			tr.FailureMessage = truncate(st.output.String())
		default:
			tr.Outcome = st.outcome
		}
		result.Tests = append(result.Tests, tr)
	}

	return result, nil
}

// SourceFile cannot be derived from a go test identity alone; the
// analysis stage locates the defining _test.go file by search.
func (a *Adapter) SourceFile(testID string) string { return "" }

// TestName extracts the test function name, dropping the package prefix
// and any subtest path.
func (a *Adapter) TestName(testID string) string {
	name := testID
	if i := strings.LastIndex(name, "/Test"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	return name
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 2000 {
		return s
	}
	return s[:1997] + "..."
}

// ParseError indicates the run artifact could not be parsed.
type ParseError struct {
	File    string
	Message string
	Action  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s (%s)", e.File, e.Message, e.Action)
}
