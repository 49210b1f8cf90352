// Package workspace hands out isolated scratch directories, one per execution,
// and guarantees they are deleted afterwards.
//
// LAYOUT:
//
//	<root>/                      process-wide scratch root (injected config)
//	  <uuid>/                    one directory per execution
//	    <uuid>.cpp               source file
//	    <uuid>.out               compiled artifact (compiled languages only)
//
// Every name is derived from a fresh random UUID, so two concurrent executions
// never collide, even when they submit byte-identical source.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Manager creates workspaces under a single root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at root. The directory is created lazily
// by Acquire, so a misconfigured root surfaces on the first request rather than
// at startup.
//
// A relative root is resolved against the current directory here, once.
// Child processes run with the workspace as their working directory, so
// relative file paths handed to them would be resolved a second time.
func NewManager(root string, logger *slog.Logger) *Manager {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Manager{root: root, logger: logger}
}

// Root returns the scratch root.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh, uniquely named workspace directory.
// The caller owns it and must call Release exactly once, normally via defer.
func (m *Manager) Acquire() (*Workspace, error) {
	if !filepath.IsAbs(m.root) {
		return nil, fmt.Errorf("workspace: root %q is not an absolute path", m.root)
	}

	id := uuid.NewString()
	dir := filepath.Join(m.root, id)

	// MkdirAll creates the root on first use. Mkdir on the leaf fails if it
	// already exists, which would mean a UUID collision.
	if err := os.MkdirAll(m.root, dirMode); err != nil {
		return nil, fmt.Errorf("workspace: creating root %s: %w", m.root, err)
	}
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, fmt.Errorf("workspace: creating %s: %w", dir, err)
	}

	m.logger.Debug("workspace acquired", slog.String("id", id), slog.String("dir", dir))

	return &Workspace{
		ID:     id,
		Dir:    dir,
		logger: m.logger,
	}, nil
}

// Sweep removes workspace directories older than maxAge. Release makes this
// unnecessary in normal operation; it exists for directories left behind by a
// crash or a kill -9 of the server itself. Errors are logged, never returned.
func (m *Manager) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("workspace sweep: reading root failed",
				slog.String("root", m.root),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || uuid.Validate(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("workspace sweep: removal failed",
				slog.String("dir", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("stale workspaces removed", slog.Int("count", removed))
	}
	return removed
}

// Workspace is a single execution's private directory.
type Workspace struct {
	ID  string
	Dir string

	mu      sync.Mutex
	files   []string
	release sync.Once
	logger  *slog.Logger
}

// SourcePath returns the path for the source file with the given extension
// (".cpp", ".py") and registers it for deletion.
func (w *Workspace) SourcePath(ext string) string {
	return w.track(filepath.Join(w.Dir, w.ID+ext))
}

// ArtifactPath returns the path a compiler should write its output to and
// registers it for deletion.
func (w *Workspace) ArtifactPath() string {
	name := w.ID + ".out"
	if runtime.GOOS == "windows" {
		name = w.ID + ".exe"
	}
	return w.track(filepath.Join(w.Dir, name))
}

// WriteFile writes data to path with mode 0644 and registers it for deletion.
func (w *Workspace) WriteFile(path string, data []byte) error {
	w.track(path)
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("workspace: writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Files returns the paths registered so far.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

func (w *Workspace) track(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		if f == path {
			return path
		}
	}
	w.files = append(w.files, path)
	return path
}

// Release deletes every registered file and then the directory itself, which
// also takes anything the program wrote into its working directory.
//
// Deletion failures are logged and swallowed: a cleanup problem must never turn
// a finished execution into a failed request. Only the first call does any work.
func (w *Workspace) Release() {
	w.release.Do(func() {
		for _, f := range w.Files() {
			if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("workspace file removal failed",
					slog.String("id", w.ID),
					slog.String("file", f),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := os.RemoveAll(w.Dir); err != nil {
			w.logger.Warn("workspace removal failed",
				slog.String("id", w.ID),
				slog.String("dir", w.Dir),
				slog.String("error", err.Error()),
			)
			return
		}
		w.logger.Debug("workspace released", slog.String("id", w.ID))
	})
}
