// Package claudecode projects skills for Claude Code.
package claudecode

import (
	"github.com/dyoshikawa/rulesync/pkg/projector"
)

// Target is the name Claude Code is selected by in targets.
const Target = "claudecode"

func init() {
	projector.RegisterProjector(Target, &claudeCodeProjector{
		SkillProjector: projector.SkillProjector{AgentDir: ".claude"},
	})
}

type claudeCodeProjector struct {
	projector.SkillProjector
}

var _ projector.Projector = &claudeCodeProjector{}
