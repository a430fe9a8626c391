package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyoshikawa/rulesync/pkg/config"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/claudecode"
	"github.com/dyoshikawa/rulesync/pkg/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSkill(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name, "SKILL.md"),
		[]byte("---\nname: "+name+"\ndescription: does "+name+" things\n---\n"), 0o644))
}

func TestInitNoInput(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "init", "--no-input", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Created rulesync.jsonc")
	assert.Contains(t, out, "Added .rulesync/skills/.curated/ to .gitignore")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Sources)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".rulesync/skills/.curated/\n.rulesync/.install.lock\nrulesync.local.toml\n", string(data))

	_, err = run(t, "init", "--no-input", "--base-dir", dir)
	assert.ErrorContains(t, err, "already exists")
}

func TestSourcesAddRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("{\n  // team skills\n  \"sources\": []\n}\n"), 0o644))

	out, err := run(t, "sources", "add", "acme/skills@v1", "--skill", "alpha", "--skill", "review-*", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Added acme/skills@v1")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []config.SourceEntry{{Source: "acme/skills@v1", Skills: []string{"alpha", "review-*"}}}, cfg.Sources)

	_, err = run(t, "sources", "add", "https://github.com/ACME/skills", "--base-dir", dir)
	assert.ErrorContains(t, err, "already configured")

	_, err = run(t, "sources", "add", "not-a-source", "--base-dir", dir)
	assert.Error(t, err)

	out, err = run(t, "sources", "remove", "ACME/skills", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed acme/skills@v1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// team skills")

	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Sources)
}

func TestInstallWithoutSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`{"sources": []}`), 0o644))

	out, err := run(t, "install", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 0 skill(s) from 0 source(s)")

	_, err = run(t, "install", "--update", "--frozen", "--base-dir", dir)
	assert.Error(t, err)
}

func TestInstallMissingConfig(t *testing.T) {
	_, err := run(t, "install", "--base-dir", t.TempDir())
	assert.ErrorContains(t, err, config.FileName)
}

func TestSkillsListAndGenerate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`{"targets": ["claudecode"], "sources": []}`), 0o644))
	writeSkill(t, store.SkillsDir(dir), "writer")
	writeSkill(t, store.CuratedDir(dir), "orphan")

	out, err := run(t, "skills", "list", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "writer")
	assert.Contains(t, out, "(local)")
	assert.Contains(t, out, "does writer things")
	assert.Contains(t, out, "(not in rulesync.lock)")

	out, err = run(t, "generate", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 2 skill(s) for claudecode")

	target, err := os.Readlink(filepath.Join(dir, ".claude", "skills", "writer"))
	require.NoError(t, err)
	abs, err := filepath.Abs(filepath.Join(store.SkillsDir(dir), "writer"))
	require.NoError(t, err)
	assert.Equal(t, abs, target)
}

func TestSkillsVerifyWithoutLock(t *testing.T) {
	out, err := run(t, "skills", "verify", "--base-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No locked skills")
}

func TestGenerateUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`{"sources": []}`), 0o644))

	_, err := run(t, "generate", "--targets", "nope", "--base-dir", dir)
	assert.ErrorContains(t, err, `unknown target "nope"`)
}
