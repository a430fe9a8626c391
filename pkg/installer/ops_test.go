package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/lockfile"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/claudecode"
	_ "github.com/dyoshikawa/rulesync/pkg/projector/cursor"
	"github.com/dyoshikawa/rulesync/pkg/remote"
	"github.com/dyoshikawa/rulesync/pkg/store"
)

func TestVerify(t *testing.T) {
	client := newFakeClient(map[string]*fakeRepo{"acme/skills": acmeRepo()})
	inst := newTestInstaller(t, client)
	ctx := context.Background()

	_, err := inst.Install(ctx, []config.SourceEntry{{Source: "acme/skills@v1"}}, Options{})
	require.NoError(t, err)

	statuses, err := inst.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, StateOK, st.State, st.Skill)
		assert.Equal(t, st.Locked, st.Actual)
	}

	require.NoError(t, os.RemoveAll(curatedPath(inst.BaseDir, "alpha")))
	require.NoError(t, os.WriteFile(curatedPath(inst.BaseDir, "beta", "notes.txt"), []byte("edited\n"), 0o644))

	lf := lockfile.Read(ctx, inst.BaseDir)
	lf.SetLockedSource("old/repo", &lockfile.LockedSource{
		ResolvedRef: shaMain,
		Skills:      map[string]lockfile.LockedSkill{"gamma": {}},
	})
	require.NoError(t, lockfile.Write(inst.BaseDir, lf))
	writeCurated(t, inst.BaseDir, "gamma")

	client.reset()
	statuses, err = inst.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, client.total())

	got := map[string]SkillState{}
	for _, st := range statuses {
		got[st.Source+"/"+st.Skill] = st.State
	}
	assert.Equal(t, map[string]SkillState{
		"acme/skills/alpha": StateMissing,
		"acme/skills/beta":  StateMismatch,
		"old/repo/gamma":    StateUnverified,
	}, got)
}

func TestVerifyIgnoresNamesOutsideCache(t *testing.T) {
	inst := newTestInstaller(t, newFakeClient(nil))
	ctx := context.Background()
	writeLocalSkill(t, inst.BaseDir, "x")

	lf := lockfile.New()
	lf.SetLockedSource("a/b", &lockfile.LockedSource{
		ResolvedRef: shaMain,
		Skills:      map[string]lockfile.LockedSkill{"../x": {Integrity: "sha256-00"}},
	})
	require.NoError(t, lockfile.Write(inst.BaseDir, lf))

	statuses, err := inst.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StateMissing, statuses[0].State)
	assert.Empty(t, statuses[0].Actual)
}

func TestOutdated(t *testing.T) {
	acme := acmeRepo()
	acme.release = &remote.Release{TagName: "v2"}
	tools := toolsRepo()
	client := newFakeClient(map[string]*fakeRepo{"acme/skills": acme, "other/tools": tools})
	inst := newTestInstaller(t, client)
	ctx := context.Background()

	_, err := inst.Install(ctx, []config.SourceEntry{{Source: "acme/skills@v1"}, {Source: "other/tools"}}, Options{})
	require.NoError(t, err)

	tools.commits[shaV2] = tools.commits[shaMain]
	tools.refs["main"] = shaV2

	statuses, err := inst.Outdated(ctx, []config.SourceEntry{
		{Source: "acme/skills@v1"},
		{Source: "other/tools"},
		{Source: "ghost/repo"},
	}, Options{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	acmeStatus := statuses[0]
	require.NoError(t, acmeStatus.Err)
	assert.Equal(t, "v1", acmeStatus.Ref)
	assert.Equal(t, shaV1, acmeStatus.LockedCommit)
	assert.Equal(t, shaV1, acmeStatus.LatestCommit)
	assert.Equal(t, "v2", acmeStatus.LatestRelease)
	assert.False(t, acmeStatus.Outdated)

	toolsStatus := statuses[1]
	require.NoError(t, toolsStatus.Err)
	assert.Equal(t, "main", toolsStatus.Ref)
	assert.Equal(t, shaMain, toolsStatus.LockedCommit)
	assert.Equal(t, shaV2, toolsStatus.LatestCommit)
	assert.Empty(t, toolsStatus.LatestRelease)
	assert.True(t, toolsStatus.Outdated)

	ghost := statuses[2]
	assert.ErrorContains(t, ghost.Err, "not found")
	assert.Empty(t, ghost.LockedCommit)

	_, err = inst.Outdated(ctx, []config.SourceEntry{{Source: "gitlab:acme/skills"}}, Options{})
	assert.ErrorContains(t, err, "not supported")
}

func TestListSkills(t *testing.T) {
	client := newFakeClient(map[string]*fakeRepo{"acme/skills": acmeRepo()})
	inst := newTestInstaller(t, client)
	ctx := context.Background()

	_, err := inst.Install(ctx, []config.SourceEntry{{Source: "acme/skills@v1"}}, Options{})
	require.NoError(t, err)
	writeLocalSkill(t, inst.BaseDir, "beta")
	writeLocalSkill(t, inst.BaseDir, "writer")

	listed, err := inst.ListSkills(ctx)
	require.NoError(t, err)

	type row struct {
		Name     string
		Source   string
		Shadowed bool
	}
	var got []row
	for _, ls := range listed {
		got = append(got, row{ls.Name, ls.Source, ls.Shadowed})
	}
	assert.Equal(t, []row{
		{"beta", "", false},
		{"writer", "", false},
		{"alpha", "acme/skills", false},
		{"beta", "acme/skills", true},
	}, got)
	assert.Equal(t, "first", listed[2].Description)
}

func TestGenerate(t *testing.T) {
	client := newFakeClient(map[string]*fakeRepo{"acme/skills": acmeRepo()})
	inst := newTestInstaller(t, client)
	ctx := context.Background()

	_, err := inst.Install(ctx, []config.SourceEntry{{Source: "acme/skills@v1"}}, Options{})
	require.NoError(t, err)
	writeLocalSkill(t, inst.BaseDir, "beta")
	writeLocalSkill(t, inst.BaseDir, "writer")

	userSkill := t.TempDir()
	linksDir := filepath.Join(inst.BaseDir, ".claude", "skills")
	require.NoError(t, os.MkdirAll(linksDir, 0o755))
	require.NoError(t, os.Symlink(userSkill, filepath.Join(linksDir, "mine")))

	n, err := inst.Generate(ctx, []string{"claudecode", "cursor"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, agentDir := range []string{".claude", ".cursor"} {
		dir := filepath.Join(inst.BaseDir, agentDir, "skills")
		assertLink(t, filepath.Join(dir, "alpha"), curatedPath(inst.BaseDir, "alpha"))
		assertLink(t, filepath.Join(dir, "beta"), filepath.Join(store.SkillsDir(inst.BaseDir), "beta"))
		assertLink(t, filepath.Join(dir, "writer"), filepath.Join(store.SkillsDir(inst.BaseDir), "writer"))
	}

	require.NoError(t, os.RemoveAll(filepath.Join(store.SkillsDir(inst.BaseDir), "writer")))
	n, err = inst.Generate(ctx, []string{"claudecode"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Lstat(filepath.Join(linksDir, "writer"))
	assert.True(t, os.IsNotExist(err))
	assertLink(t, filepath.Join(linksDir, "mine"), userSkill)

	_, err = inst.Generate(ctx, []string{"unknown"})
	assert.ErrorContains(t, err, `unknown target "unknown"`)

	_, err = inst.Generate(ctx, nil)
	assert.ErrorContains(t, err, "no targets")
}

func writeCurated(t *testing.T, base, name string) {
	t.Helper()
	dir := filepath.Join(store.CuratedDir(base), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: "+name+"\n---\n"), 0o644))
}

func assertLink(t *testing.T, link, want string) {
	t.Helper()
	got, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
