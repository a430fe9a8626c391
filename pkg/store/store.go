// Package store manages the curated skill cache, the directory tree holding
// skills fetched from remote sources. Every mutating operation is confined
// to the cache root.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyoshikawa/rulesync/pkg/lockfile"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ConfigDir is the per-project rulesync directory.
const ConfigDir = ".rulesync"

// CuratedDirName is the cache directory inside the local skills directory.
const CuratedDirName = ".curated"

// SkillsDir returns the directory of locally authored skills for baseDir.
func SkillsDir(baseDir string) string {
	return filepath.Join(baseDir, ConfigDir, "skills")
}

// InstallLockFile returns the process lock path of installs for baseDir.
func InstallLockFile(baseDir string) string {
	return filepath.Join(baseDir, ConfigDir, ".install.lock")
}

// CuratedDir returns the curated cache root for baseDir.
func CuratedDir(baseDir string) string {
	return filepath.Join(SkillsDir(baseDir), CuratedDirName)
}

// OutsideRootError is returned when a path would leave the store root.
type OutsideRootError struct {
	Path string
	Root string
}

func (e *OutsideRootError) Error() string {
	return fmt.Sprintf("path %s is not inside %s", e.Path, e.Root)
}

type Store interface {
	// Root returns the absolute store root.
	Root() string
	// Path returns the filesystem path for the given segments joined under
	// the store root. Does not create or verify the path.
	Path(segments ...string) string
	// Within reports whether path lies strictly inside the store root.
	Within(path string) bool
	// Exists reports whether the path at the given segments exists. Paths
	// outside the root yield an *OutsideRootError.
	Exists(segments ...string) (bool, error)
	// EnsureDir creates the directory at segments, including parents.
	EnsureDir(segments ...string) error
	// Remove deletes the entire tree at segments. It refuses to touch the
	// root itself or anything outside it.
	Remove(segments ...string) error
	// HashDir computes the skill integrity of the directory at segments.
	HashDir(segments ...string) (string, error)
	// ReadTree returns every regular file below segments, with paths
	// relative to that directory using forward slashes.
	ReadTree(segments ...string) ([]lockfile.SkillFile, error)
	// WriteFile writes data to the file at segments, creating parent
	// directories.
	WriteFile(data []byte, segments ...string) error
	// ReadFile reads the file at segments.
	ReadFile(segments ...string) ([]byte, error)
}

func New(root string) Store {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &store{root: filepath.Clean(root)}
}

// ForProject returns the curated cache store of the project at baseDir.
func ForProject(baseDir string) Store {
	return New(CuratedDir(baseDir))
}

type store struct {
	root string
}

var _ Store = &store{}

func (s *store) Root() string {
	return s.root
}

func (s *store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

func (s *store) Within(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *store) contained(segments []string) (string, error) {
	path := s.Path(segments...)
	if !s.Within(path) {
		return "", &OutsideRootError{Path: path, Root: s.root}
	}
	return path, nil
}

func (s *store) Exists(segments ...string) (bool, error) {
	path, err := s.contained(segments)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *store) EnsureDir(segments ...string) error {
	path, err := s.contained(segments)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, dirPerm)
}

func (s *store) Remove(segments ...string) error {
	path, err := s.contained(segments)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

func (s *store) HashDir(segments ...string) (string, error) {
	files, err := s.ReadTree(segments...)
	if err != nil {
		return "", err
	}
	return lockfile.ComputeSkillIntegrity(files), nil
}

func (s *store) ReadTree(segments ...string) ([]lockfile.SkillFile, error) {
	dir, err := s.contained(segments)
	if err != nil {
		return nil, err
	}

	var files []lockfile.SkillFile
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, lockfile.SkillFile{Path: filepath.ToSlash(rel), Content: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *store) WriteFile(data []byte, segments ...string) error {
	path, err := s.contained(segments)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, filePerm)
}

func (s *store) ReadFile(segments ...string) ([]byte, error) {
	path, err := s.contained(segments)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
