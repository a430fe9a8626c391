// Package projector exposes skills to coding assistants by linking each
// skill directory into the assistant's own skills folder.
package projector

import (
	"github.com/dyoshikawa/rulesync/pkg/skill"
)

type ProjectionOpts struct {
	ProjectDir string
	// ManagedRoots are directories whose skills rulesync owns. Links into
	// them that are no longer wanted are removed by PruneSkills.
	ManagedRoots []string
}

type Projector interface {
	// ProjectSkills links every skill into the target's skills directory.
	ProjectSkills(opts ProjectionOpts, skills []skill.Skill) error
	// UnprojectSkills removes the links for the named skills.
	UnprojectSkills(opts ProjectionOpts, names []string) error
	// PruneSkills removes links into opts.ManagedRoots whose names are not
	// in keep and returns the removed names.
	PruneSkills(opts ProjectionOpts, keep []string) ([]string, error)
	// GitignoreEntries returns the paths the target generates.
	GitignoreEntries() []string
}
