// Package lockfile reads and writes rulesync.lock, the record of which commit
// every configured source resolved to and the integrity of each skill fetched
// from it.
package lockfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyoshikawa/rulesync/pkg/logger"
	"github.com/dyoshikawa/rulesync/pkg/source"
)

const (
	// FileName is the lockfile name inside the project base directory.
	FileName = "rulesync.lock"
	// Version is the current lockfileVersion.
	Version = 1

	integrityPrefix = "sha256-"
)

type Lockfile struct {
	LockfileVersion int                      `json:"lockfileVersion"`
	Sources         map[string]*LockedSource `json:"sources"`
}

type LockedSource struct {
	RequestedRef string `json:"requestedRef,omitempty"`
	// ResolvedRef is always a full commit SHA.
	ResolvedRef string                 `json:"resolvedRef"`
	ResolvedAt  string                 `json:"resolvedAt,omitempty"`
	Skills      map[string]LockedSkill `json:"skills"`
}

type LockedSkill struct {
	// Integrity is empty for entries migrated from the legacy schema.
	Integrity string `json:"integrity"`
}

// legacyLockfile is the pre-integrity schema, where each source listed its
// skill names only.
type legacyLockfile struct {
	LockfileVersion int                     `json:"lockfileVersion"`
	Sources         map[string]legacySource `json:"sources"`
}

type legacySource struct {
	RequestedRef string   `json:"requestedRef"`
	ResolvedRef  string   `json:"resolvedRef"`
	ResolvedAt   string   `json:"resolvedAt"`
	Skills       []string `json:"skills"`
}

// New returns an empty lockfile at the current version.
func New() *Lockfile {
	return &Lockfile{LockfileVersion: Version, Sources: map[string]*LockedSource{}}
}

// Path returns the lockfile location for baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, FileName)
}

// Read loads the lockfile under baseDir. It never fails: a missing file
// yields an empty lockfile, a legacy file is upgraded in memory and an
// unreadable or corrupt file is replaced by an empty lockfile with a
// warning.
func Read(ctx context.Context, baseDir string) *Lockfile {
	log := logger.G(ctx).WithField("path", Path(baseDir))

	data, err := os.ReadFile(Path(baseDir))
	if errors.Is(err, fs.ErrNotExist) {
		return New()
	}
	if err != nil {
		log.WithError(err).Warn("cannot read lockfile, starting from an empty one")
		return New()
	}

	if lf, err := parseCurrent(data); err == nil {
		return lf
	}

	if lf, err := parseLegacy(data); err == nil {
		log.Warn("lockfile uses the legacy format without integrity hashes; re-run install with --update to populate them")
		return lf
	}

	log.Warn("lockfile is corrupt, starting from an empty one")
	return New()
}

func parseCurrent(data []byte) (*Lockfile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var lf Lockfile
	if err := dec.Decode(&lf); err != nil {
		return nil, err
	}
	if lf.LockfileVersion < 1 {
		return nil, fmt.Errorf("unsupported lockfileVersion %d", lf.LockfileVersion)
	}
	if lf.Sources == nil {
		lf.Sources = map[string]*LockedSource{}
	}
	for key, src := range lf.Sources {
		if src == nil || src.ResolvedRef == "" {
			return nil, fmt.Errorf("source %q has no resolvedRef", key)
		}
		if src.Skills == nil {
			src.Skills = map[string]LockedSkill{}
		}
	}
	return &lf, nil
}

func parseLegacy(data []byte) (*Lockfile, error) {
	var legacy legacyLockfile
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	if legacy.Sources == nil {
		return nil, errors.New("no sources")
	}

	lf := New()
	for key, src := range legacy.Sources {
		if src.ResolvedRef == "" {
			return nil, fmt.Errorf("source %q has no resolvedRef", key)
		}
		skills := make(map[string]LockedSkill, len(src.Skills))
		for _, name := range src.Skills {
			skills[name] = LockedSkill{}
		}
		lf.Sources[key] = &LockedSource{
			RequestedRef: src.RequestedRef,
			ResolvedRef:  src.ResolvedRef,
			ResolvedAt:   src.ResolvedAt,
			Skills:       skills,
		}
	}
	return lf, nil
}

// Marshal serializes lf deterministically: two-space indentation, sorted
// keys and a trailing newline.
func Marshal(lf *Lockfile) ([]byte, error) {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling lockfile: %w", err)
	}
	return append(data, '\n'), nil
}

// Write serializes lf to baseDir/rulesync.lock.
func Write(baseDir string, lf *Lockfile) error {
	data, err := Marshal(lf)
	if err != nil {
		return err
	}
	path := Path(baseDir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// NormalizeSourceKey returns the comparison identity of a source string or
// lock key. URLs, provider prefixes, refs, ".git" suffixes and trailing
// slashes are folded away and the result is lower-cased, so
// "https://github.com/Foo/Bar.git/", "github:Foo/Bar" and "foo/bar" are
// equal. Strings that do not parse as a source are normalized textually.
func NormalizeSourceKey(key string) string {
	if ref, err := source.Parse(key); err == nil {
		return strings.ToLower(ref.Key())
	}

	s := strings.ToLower(strings.TrimSpace(key))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimPrefix(s, "github:")
	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return s
}

// GetLockedSource returns the entry whose key normalizes to the same
// identity as key.
func (lf *Lockfile) GetLockedSource(key string) (*LockedSource, bool) {
	if src, ok := lf.Sources[key]; ok {
		return src, true
	}
	norm := NormalizeSourceKey(key)
	for _, k := range lf.Keys() {
		if NormalizeSourceKey(k) == norm {
			return lf.Sources[k], true
		}
	}
	return nil, false
}

// SetLockedSource stores entry for key. An existing key with the same
// identity keeps its spelling; any further spellings of that identity are
// removed.
func (lf *Lockfile) SetLockedSource(key string, entry *LockedSource) {
	if lf.Sources == nil {
		lf.Sources = map[string]*LockedSource{}
	}

	norm := NormalizeSourceKey(key)
	target := ""
	for _, k := range lf.Keys() {
		if NormalizeSourceKey(k) != norm {
			continue
		}
		if target == "" {
			target = k
			continue
		}
		delete(lf.Sources, k)
	}
	if target == "" {
		target = key
	}
	lf.Sources[target] = entry
}

// Prune removes every entry whose identity is not among configured and
// returns the removed keys in sorted order.
func (lf *Lockfile) Prune(configured []string) []string {
	keep := make(map[string]bool, len(configured))
	for _, c := range configured {
		keep[NormalizeSourceKey(c)] = true
	}

	var removed []string
	for _, k := range lf.Keys() {
		if !keep[NormalizeSourceKey(k)] {
			delete(lf.Sources, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// SkillOwner returns the key of the source whose entry lists skill name.
func (lf *Lockfile) SkillOwner(name string) (string, bool) {
	for _, k := range lf.Keys() {
		if _, ok := lf.Sources[k].Skills[name]; ok {
			return k, true
		}
	}
	return "", false
}

// Keys returns the raw source keys in sorted order.
func (lf *Lockfile) Keys() []string {
	keys := make([]string, 0, len(lf.Sources))
	for k := range lf.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SkillFile is one file of a skill, addressed relative to the skill root
// with forward slashes.
type SkillFile struct {
	Path    string
	Content []byte
}

// ComputeSkillIntegrity hashes the whole file set of a skill. Files are
// sorted by path first, so the result does not depend on fetch order.
func ComputeSkillIntegrity(files []SkillFile) string {
	sorted := make([]SkillFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write(f.Content)
		h.Write([]byte{0})
	}
	return integrityPrefix + hex.EncodeToString(h.Sum(nil))
}
