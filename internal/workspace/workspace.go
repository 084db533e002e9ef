package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
)

// Scope is an acquired temporary working directory.
type Scope struct {
	mu       sync.Mutex
	dir      string
	released bool
}

// Acquire ensures dir exists and returns the scope owning it. The caller must
// Release the scope, typically with defer.
func Acquire(dir string) (*Scope, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("workspace directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	if abs == filepath.Dir(abs) {
		return nil, fmt.Errorf("refusing to use filesystem root %s as workspace", abs)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Acquired workspace", logfields.Path(abs))
	return &Scope{dir: abs}, nil
}

// Path returns the absolute workspace directory.
func (s *Scope) Path() string {
	return s.dir
}

// Release removes the workspace directory. Calling it more than once is a no-op.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Released workspace", logfields.Path(s.dir))
	return nil
}
