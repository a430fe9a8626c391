// Package cursor projects skills for Cursor.
package cursor

import (
	"github.com/dyoshikawa/rulesync/pkg/projector"
)

// Target is the name Cursor is selected by in targets.
const Target = "cursor"

func init() {
	projector.RegisterProjector(Target, &cursorProjector{
		SkillProjector: projector.SkillProjector{AgentDir: ".cursor"},
	})
}

type cursorProjector struct {
	projector.SkillProjector
}

var _ projector.Projector = &cursorProjector{}
