package claudecode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyoshikawa/rulesync/pkg/projector"
	"github.com/dyoshikawa/rulesync/pkg/skill"
)

func TestRegistered(t *testing.T) {
	if _, ok := projector.GetProjector(Target); !ok {
		t.Fatalf("no projector registered for %q", Target)
	}
}

func TestProjectSkills(t *testing.T) {
	projectDir := t.TempDir()
	skillDir := filepath.Join(t.TempDir(), "reviewer")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, skill.FileName), []byte("---\nname: reviewer\ndescription: reviews\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := skill.Load(skillDir)
	if err != nil {
		t.Fatal(err)
	}

	proj, _ := projector.GetProjector(Target)
	if err := proj.ProjectSkills(projector.ProjectionOpts{ProjectDir: projectDir}, []skill.Skill{s}); err != nil {
		t.Fatalf("ProjectSkills() error = %v", err)
	}

	link := filepath.Join(projectDir, ".claude", "skills", "reviewer")
	got, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("expected symlink at %q: %v", link, err)
	}
	if got != skillDir {
		t.Errorf("symlink target = %q, want %q", got, skillDir)
	}

	if entries := proj.GitignoreEntries(); len(entries) != 1 || entries[0] != ".claude/skills/" {
		t.Errorf("GitignoreEntries() = %v", entries)
	}
}
