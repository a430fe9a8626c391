// Package config loads the committed project configuration (rulesync.jsonc)
// and the per-developer settings layered on top of it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/dyoshikawa/rulesync/pkg/lockfile"
	"github.com/dyoshikawa/rulesync/pkg/source"
)

const (
	// FileName is the project configuration file. It accepts comments and
	// trailing commas.
	FileName = "rulesync.jsonc"
	// PlainFileName is accepted when FileName is absent.
	PlainFileName = "rulesync.json"
)

// WildcardSkill selects every skill a source offers.
const WildcardSkill = "*"

type Config struct {
	Schema  string        `json:"$schema,omitempty"`
	Targets []string      `json:"targets,omitempty"`
	Sources []SourceEntry `json:"sources"`
}

type SourceEntry struct {
	Source string `json:"source"`
	// Skills filters the skills fetched from Source. Empty means all.
	Skills []string `json:"skills,omitempty"`
}

// SkillFilter returns the entry's skill patterns, defaulting to "*".
func (e SourceEntry) SkillFilter() []string {
	if len(e.Skills) == 0 {
		return []string{WildcardSkill}
	}
	return e.Skills
}

func UnmarshalConfig(data []byte) (*Config, error) {
	v, err := hujson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing JSONC: %w", err)
	}
	v.Standardize()

	cfg := &Config{}
	if err := json.Unmarshal(v.Pack(), cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Validate checks every source entry. Source strings must parse and no two
// entries may name the same source.
func (c *Config) Validate() error {
	var err error
	seen := map[string]int{}
	for i, e := range c.Sources {
		if strings.TrimSpace(e.Source) == "" {
			err = errors.Join(err, fmt.Errorf("sources[%d]: source must be provided", i))
			continue
		}
		if _, perr := source.Parse(e.Source); perr != nil {
			err = errors.Join(err, fmt.Errorf("sources[%d]: %w", i, perr))
			continue
		}
		for _, s := range e.Skills {
			if strings.TrimSpace(s) == "" {
				err = errors.Join(err, fmt.Errorf("sources[%d]: skill names must not be empty", i))
			}
		}
		key := lockfile.NormalizeSourceKey(e.Source)
		if j, ok := seen[key]; ok {
			err = errors.Join(err, fmt.Errorf("sources[%d]: %q duplicates sources[%d]", i, e.Source, j))
			continue
		}
		seen[key] = i
	}
	return err
}

func (c *Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Path returns the configuration file used for baseDir: rulesync.jsonc,
// or rulesync.json when only that exists.
func Path(baseDir string) string {
	jsonc := filepath.Join(baseDir, FileName)
	if _, err := os.Stat(jsonc); err == nil {
		return jsonc
	}
	plain := filepath.Join(baseDir, PlainFileName)
	if _, err := os.Stat(plain); err == nil {
		return plain
	}
	return jsonc
}

// Load reads and validates the configuration of the project at baseDir.
func Load(baseDir string) (*Config, error) {
	return LoadFile(Path(baseDir))
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := UnmarshalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func SaveFile(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// AddSource appends entry to the sources of the config file at path,
// keeping the file's comments and formatting. It fails if a source with the
// same identity is already configured.
func AddSource(path string, entry SourceEntry) error {
	if _, err := source.Parse(entry.Source); err != nil {
		return err
	}
	return patchFile(path, func(cfg *Config) ([]patchOp, error) {
		for _, e := range cfg.Sources {
			if lockfile.NormalizeSourceKey(e.Source) == lockfile.NormalizeSourceKey(entry.Source) {
				return nil, fmt.Errorf("source %q is already configured", e.Source)
			}
		}
		if cfg.Sources == nil {
			return []patchOp{{Op: "add", Path: "/sources", Value: []SourceEntry{entry}}}, nil
		}
		return []patchOp{{Op: "add", Path: "/sources/-", Value: entry}}, nil
	})
}

// RemoveSource removes the entry whose source has the same identity as src
// from the config file at path, keeping comments elsewhere in the file. It
// returns the removed source string.
func RemoveSource(path, src string) (string, error) {
	var removed string
	err := patchFile(path, func(cfg *Config) ([]patchOp, error) {
		want := lockfile.NormalizeSourceKey(src)
		for i, e := range cfg.Sources {
			if lockfile.NormalizeSourceKey(e.Source) == want {
				removed = e.Source
				return []patchOp{{Op: "remove", Path: fmt.Sprintf("/sources/%d", i)}}, nil
			}
		}
		return nil, fmt.Errorf("source %q is not configured", src)
	})
	return removed, err
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

func patchFile(path string, plan func(cfg *Config) ([]patchOp, error)) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte("{}\n")
	} else if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := UnmarshalConfig(data)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	ops, err := plan(cfg)
	if err != nil {
		return err
	}

	v, err := hujson.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}
	if err := v.Patch(patch); err != nil {
		return fmt.Errorf("patching %s: %w", path, err)
	}
	v.Format()

	if err := os.WriteFile(path, v.Pack(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
