package projector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyoshikawa/rulesync/pkg/skill"
)

// SkillProjector projects skills into a given target directory by creating
// symlinks under <projectDir>/<agentDir>/skills/<skill-name>.
type SkillProjector struct {
	// AgentDir is the target-specific directory name (e.g. ".claude", ".gemini").
	AgentDir string
}

func (sp *SkillProjector) skillsDir(opts ProjectionOpts) string {
	return filepath.Join(opts.ProjectDir, sp.AgentDir, "skills")
}

func (sp *SkillProjector) GitignoreEntries() []string {
	return []string{sp.AgentDir + "/skills/"}
}

func (sp *SkillProjector) ProjectSkills(opts ProjectionOpts, skills []skill.Skill) error {
	skillsDir := sp.skillsDir(opts)
	err := os.MkdirAll(skillsDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to make %q dir for skills: %w", skillsDir, err)
	}

	var projectErr error
	for _, s := range skills {
		link := filepath.Join(skillsDir, s.Name())
		// if exists & is symlink - overwrite
		// if exists & is not symlink - error, the user authored it
		exists, isSymlink := checkExistenceAndIsSymlink(link)
		if !exists {
			err := os.Symlink(s.Dir(), link)
			if err != nil {
				projectErr = errors.Join(projectErr, fmt.Errorf("failed to create symlink for skill %q: %w", s.Name(), err))
			}

			continue
		}

		if isSymlink {
			err := overwriteSymlink(s.Dir(), link)
			if err != nil {
				projectErr = errors.Join(projectErr, fmt.Errorf("failed to overwrite symlink for skill %q: %w", s.Name(), err))
			}
		} else {
			projectErr = errors.Join(projectErr, fmt.Errorf("failed to symlink skill %q: file/dir already exists at path", s.Name()))
		}
	}

	return projectErr
}

func (sp *SkillProjector) UnprojectSkills(opts ProjectionOpts, names []string) error {
	var unprojectErr error
	for _, name := range names {
		link := filepath.Join(sp.skillsDir(opts), name)
		exists, isSymlink := checkExistenceAndIsSymlink(link)
		if !exists {
			continue
		}
		if !isSymlink {
			unprojectErr = errors.Join(unprojectErr, fmt.Errorf("refusing to remove skill %q: not a symlink", name))
			continue
		}
		if err := os.Remove(link); err != nil {
			unprojectErr = errors.Join(unprojectErr, fmt.Errorf("failed to remove symlink for skill %q: %w", name, err))
		}
	}
	return unprojectErr
}

func (sp *SkillProjector) PruneSkills(opts ProjectionOpts, keep []string) ([]string, error) {
	entries, err := os.ReadDir(sp.skillsDir(opts))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", sp.skillsDir(opts), err)
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	var stale []string
	for _, e := range entries {
		if kept[e.Name()] || e.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(sp.skillsDir(opts), e.Name()))
		if err != nil || !underAny(target, opts.ManagedRoots) {
			continue
		}
		stale = append(stale, e.Name())
	}
	sort.Strings(stale)

	return stale, sp.UnprojectSkills(opts, stale)
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel) {
			return true
		}
	}
	return false
}

func overwriteSymlink(newTargetPath, linkPath string) error {
	tmpLinkPath := fmt.Sprintf("%s.tmp", linkPath)

	if err := os.Remove(tmpLinkPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing temporary link dir: %w", err)
	}

	if err := os.Symlink(newTargetPath, tmpLinkPath); err != nil {
		return fmt.Errorf("failed to create temporary symlink: %w", err)
	}

	if err := os.Rename(tmpLinkPath, linkPath); err != nil {
		os.Remove(tmpLinkPath)
		return fmt.Errorf("failed to rename temporary symlink: %w", err)
	}

	return nil
}

func checkExistenceAndIsSymlink(path string) (exists, isSymlink bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, false
	}
	return true, info.Mode()&os.ModeSymlink == os.ModeSymlink
}
