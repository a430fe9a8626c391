package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dyoshikawa/rulesync/pkg/lockfile"
	"github.com/dyoshikawa/rulesync/pkg/logger"
	"github.com/dyoshikawa/rulesync/pkg/projector"
	"github.com/dyoshikawa/rulesync/pkg/skill"
	"github.com/dyoshikawa/rulesync/pkg/store"
)

type ListedSkill struct {
	Name        string
	Description string
	Dir         string
	Curated     bool
	// Source is the lockfile key of the providing source, empty for local
	// skills.
	Source string
	// Shadowed marks curated skills hidden by a local skill of the same
	// directory name.
	Shadowed bool
}

// ListSkills returns the local skills followed by the curated ones, each
// group sorted by directory name.
func (inst *Installer) ListSkills(ctx context.Context) ([]ListedSkill, error) {
	local, curated, err := inst.collect(ctx)
	if err != nil {
		return nil, err
	}
	lf := lockfile.Read(ctx, inst.BaseDir)

	localNames := map[string]bool{}
	out := make([]ListedSkill, 0, len(local)+len(curated))
	for _, s := range local {
		localNames[filepath.Base(s.Dir())] = true
		out = append(out, ListedSkill{Name: s.Name(), Description: s.Description(), Dir: s.Dir()})
	}
	for _, s := range curated {
		dir := filepath.Base(s.Dir())
		owner, _ := lf.SkillOwner(dir)
		out = append(out, ListedSkill{
			Name:        s.Name(),
			Description: s.Description(),
			Dir:         s.Dir(),
			Curated:     true,
			Source:      owner,
			Shadowed:    localNames[dir],
		})
	}
	return out, nil
}

// Generate links the local and curated skills into every target and removes
// links to skills that no longer exist. A local skill wins over a curated
// one with the same directory name. It returns the number of skills linked
// per target.
func (inst *Installer) Generate(ctx context.Context, targets []string) (int, error) {
	if len(targets) == 0 {
		return 0, fmt.Errorf("no targets given; available targets: %v", projector.RegisteredTargets())
	}
	projectors := make([]projector.Projector, 0, len(targets))
	for _, t := range targets {
		p, ok := projector.GetProjector(t)
		if !ok {
			return 0, fmt.Errorf("unknown target %q; available targets: %v", t, projector.RegisteredTargets())
		}
		projectors = append(projectors, p)
	}

	local, curated, err := inst.collect(ctx)
	if err != nil {
		return 0, err
	}
	skills := append([]skill.Skill{}, local...)
	localNames := map[string]bool{}
	for _, s := range local {
		localNames[filepath.Base(s.Dir())] = true
	}
	for _, s := range curated {
		if !localNames[filepath.Base(s.Dir())] {
			skills = append(skills, s)
		}
	}
	keep := make([]string, 0, len(skills))
	for _, s := range skills {
		keep = append(keep, s.Name())
	}
	sort.Strings(keep)

	base, err := filepath.Abs(inst.BaseDir)
	if err != nil {
		return 0, err
	}
	opts := projector.ProjectionOpts{
		ProjectDir:   base,
		ManagedRoots: []string{store.SkillsDir(base)},
	}
	for i, p := range projectors {
		log := logger.G(ctx).WithField("target", targets[i])
		if err := p.ProjectSkills(opts, skills); err != nil {
			return 0, fmt.Errorf("linking skills for %s: %w", targets[i], err)
		}
		removed, err := p.PruneSkills(opts, keep)
		if err != nil {
			return 0, fmt.Errorf("pruning skills for %s: %w", targets[i], err)
		}
		for _, name := range removed {
			log.WithField("skill", name).Info("removed stale skill link")
		}
		log.WithField("count", len(skills)).Debug("linked skills")
	}
	return len(skills), nil
}

// collect loads the local and curated skills from absolute paths. Skill
// directories that fail to load are logged and skipped.
func (inst *Installer) collect(ctx context.Context) (local, curated []skill.Skill, err error) {
	base, err := filepath.Abs(inst.BaseDir)
	if err != nil {
		return nil, nil, err
	}
	return loadAll(ctx, store.SkillsDir(base)), loadAll(ctx, store.CuratedDir(base)), nil
}

func loadAll(ctx context.Context, root string) []skill.Skill {
	skills, err := skill.Discover(root)
	if err != nil {
		logger.G(ctx).WithField("dir", root).WithError(err).Warn("some skills could not be loaded")
	}
	return skills
}
