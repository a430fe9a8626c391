// Package codex projects skills for Codex CLI.
package codex

import (
	"github.com/dyoshikawa/rulesync/pkg/projector"
)

// Target is the name Codex CLI is selected by in targets.
const Target = "codexcli"

func init() {
	projector.RegisterProjector(Target, &codexProjector{
		SkillProjector: projector.SkillProjector{AgentDir: ".codex"},
	})
}

type codexProjector struct {
	projector.SkillProjector
}

var _ projector.Projector = &codexProjector{}
