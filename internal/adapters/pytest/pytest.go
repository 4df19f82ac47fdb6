// Package pytest implements the flakeseer adapter for pytest with the
// pytest-json-report plugin.
package pytest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flakeseer/flakeseer/internal/model"
)

const artifactFilename = "pytest.json"

// Adapter implements model.Adapter for pytest.
type Adapter struct{}

// New creates a new pytest adapter.
func New() *Adapter {
	return &Adapter{}
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return "pytest" }

// BuildCommand returns the pytest invocation with the JSON report
// directed into runDir.
func (a *Adapter) BuildCommand(runDir, target string) []string {
	return []string{
		"python", "-m", "pytest", target,
		"--json-report",
		"--json-report-file=" + filepath.Join(runDir, artifactFilename),
		"-q",
		"--disable-warnings",
		"-p", "no:randomly",
	}
}

// ExpectedArtifact returns the JSON report path.
func (a *Adapter) ExpectedArtifact(runDir string) string {
	return filepath.Join(runDir, artifactFilename)
}

// report mirrors the pytest-json-report schema, trimmed to the fields
// the pipeline consumes.
type report struct {
	Tests []reportTest `json:"tests"`
}

type reportTest struct {
	NodeID  string      `json:"nodeid"`
	Outcome string      `json:"outcome"`
	Call    *reportStep `json:"call"`
	Setup   *reportStep `json:"setup"`
}

type reportStep struct {
	Duration float64 `json:"duration"`
	Longrepr string  `json:"longrepr"`
}

// Parse reads the pytest JSON report from runDir.
func (a *Adapter) Parse(runDir string) (*model.RunResult, error) {
	path := a.ExpectedArtifact(runDir)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Action:  "Ensure pytest ran with --json-report (pip install pytest-json-report).",
		}
	}
	if len(data) == 0 {
		return nil, &ParseError{
			File:    path,
			Message: "file is empty",
			Action:  "Ensure pytest completed; the JSON report should not be empty.",
		}
	}

	var rpt report
	if err := json.Unmarshal(data, &rpt); err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Action:  "The report may be truncated; re-run the session.",
		}
	}
	if len(rpt.Tests) == 0 {
		return nil, &ParseError{
			File:    path,
			Message: "report contains no tests",
			Action:  "Check that the target path matches collected tests.",
		}
	}

	result := &model.RunResult{}
	for _, rt := range rpt.Tests {
		tr := model.TestResult{
			TestID:  rt.NodeID,
			Outcome: mapOutcome(rt.Outcome),
		}
		if rt.Call != nil {
			tr.Duration = time.Duration(rt.Call.Duration * float64(time.Second))
		}
		if tr.Outcome == model.OutcomeFail || tr.Outcome == model.OutcomeError {
			tr.FailureMessage = failureMessage(rt)
		}
		result.Tests = append(result.Tests, tr)
	}

	return result, nil
}

func mapOutcome(outcome string) model.Outcome {
	switch outcome {
	case "passed":
		return model.OutcomePass
	case "failed":
		return model.OutcomeFail
	case "skipped", "xfailed", "xpassed":
		return model.OutcomeSkip
	default:
		return model.OutcomeError
	}
}

func failureMessage(rt reportTest) string {
	var msg string
	if rt.Call != nil && rt.Call.Longrepr != "" {
		msg = rt.Call.Longrepr
	} else if rt.Setup != nil && rt.Setup.Longrepr != "" {
		msg = rt.Setup.Longrepr
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > 2000 {
		msg = msg[:1997] + "..."
	}
	return msg
}

// SourceFile returns the defining file from the nodeid
// ("tests/test_app.py::test_login" -> "tests/test_app.py").
func (a *Adapter) SourceFile(testID string) string {
	if i := strings.Index(testID, "::"); i >= 0 {
		return testID[:i]
	}
	return ""
}

// TestName extracts the bare test function name from a nodeid, dropping
// class qualifiers and parametrize suffixes.
func (a *Adapter) TestName(testID string) string {
	name := testID
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return name
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
