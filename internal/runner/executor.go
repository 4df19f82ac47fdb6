package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Executor runs one test invocation whose artifacts land in runDir.
// Implementations must be safe for concurrent use: the runner may
// execute several runs at once, each with its own runDir.
type Executor interface {
	Execute(ctx context.Context, runDir string, cmd []string) error
}

// ProcessExecutor spawns the real external test process. Stdout and
// stderr are captured into runDir so adapters can parse them and so
// failed runs leave evidence behind. Each child gets a TMPDIR inside
// its own runDir, so concurrent runs never share scratch state.
type ProcessExecutor struct {
	// Dir is the working directory for the spawned process; empty means
	// the current directory.
	Dir string
	// Tee mirrors the child's output to these writers when set.
	TeeStdout io.Writer
	TeeStderr io.Writer
}

// Execute runs cmd with its output captured under runDir. A non-zero
// exit status is not an error: failing tests are the expected signal.
// Context cancellation (per-run timeout) kills the process and is
// surfaced as an error.
func (e *ProcessExecutor) Execute(ctx context.Context, runDir string, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = e.Dir

	// Concurrent runs must not share scratch space: a per-run TMPDIR
	// keeps the tests under test from observing each other through
	// temp files, which would confound the flakiness measurement.
	tmp := filepath.Join(runDir, "tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create run temp directory: %w", err)
	}
	c.Env = append(os.Environ(), "TMPDIR="+tmp)

	stdout, err := os.Create(filepath.Join(runDir, "stdout.txt"))
	if err != nil {
		return fmt.Errorf("create stdout capture: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(runDir, "stderr.txt"))
	if err != nil {
		return fmt.Errorf("create stderr capture: %w", err)
	}
	defer stderr.Close()

	c.Stdout = io.Writer(stdout)
	if e.TeeStdout != nil {
		c.Stdout = io.MultiWriter(stdout, e.TeeStdout)
	}
	c.Stderr = io.Writer(stderr)
	if e.TeeStderr != nil {
		c.Stderr = io.MultiWriter(stderr, e.TeeStderr)
	}

	runErr := c.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("run timed out or was cancelled: %w", ctx.Err())
	}
	if _, ok := runErr.(*exec.ExitError); ok {
		return nil // tests failed; the report carries the detail
	}
	if runErr != nil {
		return fmt.Errorf("spawn %s: %w", cmd[0], runErr)
	}
	return nil
}

// ReplayExecutor replays canned report artifacts instead of spawning a
// process, keying each run by the index encoded in its runDir name.
// It lets the scorer, classifier and suggestion stages be exercised
// without any real test run.
type ReplayExecutor struct {
	// ArtifactName is the file the adapter expects, e.g. "pytest.json".
	ArtifactName string
	// Reports holds one artifact body per run, indexed by run_index-1.
	// A nil entry simulates a crashed run that produced nothing.
	Reports [][]byte
}

// Execute writes the canned artifact for the run identified by runDir.
func (e *ReplayExecutor) Execute(ctx context.Context, runDir string, cmd []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := ParseRunIndex(filepath.Base(runDir))
	if err != nil {
		return fmt.Errorf("replay: bad run directory %q: %w", runDir, err)
	}
	if idx < 1 || idx > len(e.Reports) {
		return fmt.Errorf("replay: no canned report for run %d", idx)
	}
	body := e.Reports[idx-1]
	if body == nil {
		return fmt.Errorf("replay: simulated crash on run %d", idx)
	}

	path := filepath.Join(runDir, e.ArtifactName)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("replay: write artifact: %w", err)
	}
	return nil
}

// ParseRunIndex extracts the run index from a run directory name.
func ParseRunIndex(name string) (int, error) {
	return strconv.Atoi(name)
}
