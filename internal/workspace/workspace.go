// Package workspace manages the ephemeral directories one orchestration
// run clones into. A workspace is exclusively owned by the run that
// created it and is always removed on exit.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// skipDirs are directory names excluded from file-tree enumeration.
// They carry no signal for code synthesis and inflate the prompt.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
}

// Workspace is one run's scratch directory.
type Workspace struct {
	Path string
}

// New creates a uniquely named workspace under root. Root is created if
// missing.
func New(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	path := filepath.Join(root, "echo-agent-"+uuid.NewString())
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Path: path}, nil
}

// FileTree enumerates the workspace's files as sorted relative paths,
// skipping hidden entries and build-artifact directories. Enumeration
// stops after maxFiles entries; the bool reports truncation.
func (w *Workspace) FileTree(maxFiles int) ([]string, bool, error) {
	var files []string
	truncated := false

	err := filepath.WalkDir(w.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == w.Path {
				return nil
			}
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if maxFiles > 0 && len(files) >= maxFiles {
			truncated = true
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(w.Path, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to enumerate workspace: %w", err)
	}

	sort.Strings(files)
	return files, truncated, nil
}

// WriteFile writes content to a path relative to the workspace,
// creating parent directories as needed. Paths escaping the workspace
// are rejected.
func (w *Workspace) WriteFile(relPath, content string) error {
	cleaned := filepath.Clean(relPath)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid patch path: %s", relPath)
	}

	full := filepath.Join(w.Path, cleaned)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}

// Remove deletes the workspace. If the first attempt fails (read-only
// version-control object files on some platforms), permissions are
// relaxed once and removal retried. The error from the retry is
// returned for logging; callers treat it as non-fatal.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Path); err == nil {
		return nil
	}

	filepath.WalkDir(w.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		os.Chmod(path, 0o755)
		return nil
	})

	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Path, err)
	}
	return nil
}
