// Package gemini projects skills for Gemini CLI.
package gemini

import (
	"github.com/dyoshikawa/rulesync/pkg/projector"
)

// Target is the name Gemini CLI is selected by in targets.
const Target = "geminicli"

func init() {
	projector.RegisterProjector(Target, &geminiProjector{
		SkillProjector: projector.SkillProjector{AgentDir: ".gemini"},
	})
}

type geminiProjector struct {
	projector.SkillProjector
}

var _ projector.Projector = &geminiProjector{}
