// Package skill loads skill directories, each holding a SKILL.md file with
// YAML frontmatter.
package skill

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

const (
	TypeSkill = "skill"
	// FileName is the manifest every skill directory carries.
	FileName = "SKILL.md"
	// CuratedDirName holds fetched skills and is never treated as a local
	// skill.
	CuratedDirName = ".curated"
)

var (
	yamlFrontMatterDelim = []byte{'-', '-', '-'}
	validSkillNameRegex  = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)
)

type Skill interface {
	// Name returns the skill name from the frontmatter, or the directory
	// name when the frontmatter has none.
	Name() string
	Description() string
	// Type returns TypeSkill.
	Type() string
	// Dir returns where the skill contents live on disk
	Dir() string
	// Validate makes sure skill contents are okay
	Validate() error
}

func Load(dir string) (Skill, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file in %q", FileName, dir)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	inFrontMatter := false
	yamlBuffer := bytes.Buffer{}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading %s frontmatter: %w", FileName, err)
		}

		if bytes.HasPrefix(line, yamlFrontMatterDelim) {
			if inFrontMatter {
				break
			}
			inFrontMatter = true
		} else if inFrontMatter {
			yamlBuffer.Write(line)
		} else if len(bytes.TrimSpace(line)) > 0 {
			// body before any frontmatter delimiter
			break
		}

		if err == io.EOF {
			break
		}
	}

	if yamlBuffer.Len() == 0 {
		return nil, fmt.Errorf("%s in %q is missing YAML front matter ('---' delimiters)", FileName, dir)
	}

	s := &skill{dir: dir}
	if err := yaml.Unmarshal(yamlBuffer.Bytes(), s); err != nil {
		return nil, fmt.Errorf("parsing %s frontmatter in %q: %w", FileName, dir, err)
	}
	if s.SkillName == "" {
		s.SkillName = filepath.Base(dir)
	}
	return s, nil
}

type skill struct {
	SkillName     string            `json:"name"`
	Desc          string            `json:"description"`
	License       string            `json:"license,omitempty"`
	Compatability string            `json:"compatability,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AllowedTools  string            `json:"allowed-tools,omitempty"` // space delimited string
	dir           string
}

func (s *skill) Name() string {
	return s.SkillName
}

func (s *skill) Description() string {
	return s.Desc
}

func (s *skill) Type() string {
	return TypeSkill
}

func (s *skill) Dir() string {
	return s.dir
}

func (s *skill) Validate() error {
	var err error
	if !validSkillNameRegex.Match([]byte(s.SkillName)) {
		err = errors.Join(err, fmt.Errorf("skill name must be max 64 characters with only lowercase letters, numbers, and hyphens. must not start or end with a hyphen"))
	}

	if len(s.Desc) > 1024 {
		err = errors.Join(err, fmt.Errorf("skill description must be max 1024 characters"))
	}
	if len(s.Desc) == 0 {
		err = errors.Join(err, fmt.Errorf("skill description must be provided"))
	}

	if len(s.Compatability) > 500 {
		err = errors.Join(err, fmt.Errorf("compatability must be max 500 characters"))
	}

	return err
}

// DirNames returns the sorted names of the skill directories directly
// inside root, skipping hidden directories such as the curated cache. A
// missing root yields no names.
func DirNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Discover loads every skill directory inside root. Directories that fail
// to load are reported in the joined error while the rest are still
// returned.
func Discover(root string) ([]Skill, error) {
	names, err := DirNames(root)
	if err != nil {
		return nil, err
	}

	var (
		skills  []Skill
		loadErr error
	)
	for _, name := range names {
		s, err := Load(filepath.Join(root, name))
		if err != nil {
			loadErr = errors.Join(loadErr, err)
			continue
		}
		skills = append(skills, s)
	}
	return skills, loadErr
}
