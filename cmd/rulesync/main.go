package main

import (
	"github.com/dyoshikawa/rulesync/pkg/cmd"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/claudecode"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/codex"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/cursor"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/gemini"
	_ "github.com/dyoshikawa/rulesync/pkg/remote/github"
)

func main() {
	cmd.Execute()
}
