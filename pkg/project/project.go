// Package project bootstraps a rulesync project: the starter configuration
// and the .gitignore entries for generated files.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/store"
)

const ConfigFile = config.FileName

// GitignoreEntries returns the generated paths that should not be
// committed: the curated cache, the install lock and the developer config.
func GitignoreEntries() []string {
	return []string{
		filepath.ToSlash(store.CuratedDir("")) + "/",
		filepath.ToSlash(store.InstallLockFile("")),
		config.LocalConfigFile,
	}
}

// Init creates rulesync.jsonc in dir with the given targets and sources.
// Returns an error if a project configuration already exists.
func Init(dir string, targets []string, sources []config.SourceEntry) error {
	for _, name := range []string{config.FileName, config.PlainFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return fmt.Errorf("%s already exists", name)
		}
	}

	cfg := &config.Config{Targets: targets, Sources: sources}
	if cfg.Sources == nil {
		cfg.Sources = []config.SourceEntry{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.SaveFile(filepath.Join(dir, ConfigFile), cfg); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFile, err)
	}
	return nil
}

// EnsureGitignore ensures that each entry appears somewhere in the .gitignore
// file within dir. Only entries not already present are appended. Returns the
// list of entries that were actually added.
func EnsureGitignore(dir string, entries []string) ([]string, error) {
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var toAdd []string
	for _, entry := range entries {
		if !present[entry] {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// Ensure we start on a new line if file doesn't end with one.
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return nil, err
		}
	}

	for _, entry := range toAdd {
		if _, err := f.WriteString(entry + "\n"); err != nil {
			return nil, err
		}
	}

	return toAdd, nil
}
