package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellOrSkip(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	return "/bin/sh"
}

func TestProcessExecutorCapturesOutput(t *testing.T) {
	sh := shellOrSkip(t)
	runDir := t.TempDir()

	e := &ProcessExecutor{}
	err := e.Execute(context.Background(), runDir, []string{sh, "-c", "echo out; echo err >&2"})
	require.NoError(t, err)

	stdout, err := os.ReadFile(filepath.Join(runDir, "stdout.txt"))
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(stdout))

	stderr, err := os.ReadFile(filepath.Join(runDir, "stderr.txt"))
	require.NoError(t, err)
	assert.Equal(t, "err\n", string(stderr))
}

func TestProcessExecutorNonZeroExitIsNotAnError(t *testing.T) {
	sh := shellOrSkip(t)

	e := &ProcessExecutor{}
	err := e.Execute(context.Background(), t.TempDir(), []string{sh, "-c", "exit 3"})
	assert.NoError(t, err)
}

func TestProcessExecutorIsolatesTempDirPerRun(t *testing.T) {
	sh := shellOrSkip(t)

	e := &ProcessExecutor{}
	tmpOf := func(runDir string) string {
		err := e.Execute(context.Background(), runDir, []string{sh, "-c", `printf %s "$TMPDIR"`})
		require.NoError(t, err)
		out, err := os.ReadFile(filepath.Join(runDir, "stdout.txt"))
		require.NoError(t, err)
		return string(out)
	}

	dir1, dir2 := t.TempDir(), t.TempDir()
	tmp1, tmp2 := tmpOf(dir1), tmpOf(dir2)

	// Each run's scratch space lives inside its own run directory, so
	// two runs can never observe each other through temp files.
	assert.True(t, strings.HasPrefix(tmp1, dir1), "TMPDIR %q not under %q", tmp1, dir1)
	assert.True(t, strings.HasPrefix(tmp2, dir2), "TMPDIR %q not under %q", tmp2, dir2)
	assert.NotEqual(t, tmp1, tmp2)
	assert.DirExists(t, tmp1)
}
