// Package workspace manages the scoped on-disk session directory that
// holds per-run report artifacts. The handle is injected into the
// runner and released deterministically at session end.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session is a scoped working directory for one detection session.
type Session struct {
	ID   string
	Root string

	keep bool
}

// New creates a session directory under baseDir. The directory is named
// by a fresh session ID so concurrent sessions never collide.
func New(baseDir string) (*Session, error) {
	id := uuid.NewString()
	root := filepath.Join(baseDir, "sessions", id)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", root, err)
	}
	return &Session{ID: id, Root: root}, nil
}

// RunDir creates and returns the isolated directory for one run. Each
// run writes its artifacts here; no two runs share a directory.
func (s *Session) RunDir(runIndex int) (string, error) {
	dir := filepath.Join(s.Root, "runs", fmt.Sprintf("%03d", runIndex))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory %s: %w", dir, err)
	}
	return dir, nil
}

// Keep marks the session directory to be preserved on Release, for
// post-mortem inspection of raw run artifacts.
func (s *Session) Keep() { s.keep = true }

// Release removes the session directory unless Keep was called. Safe to
// call multiple times and on all exit paths.
func (s *Session) Release() error {
	if s.keep {
		return nil
	}
	if err := os.RemoveAll(s.Root); err != nil {
		return fmt.Errorf("release session %s: %w", s.ID, err)
	}
	return nil
}
