package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalConfig(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    *Config
		wantErr bool
	}{
		"jsonc with comments and trailing commas": {
			input: `{
  // where skills come from
  "targets": ["claudecode"],
  "sources": [
    { "source": "acme/skills@v1", "skills": ["*"], },
    /* pinned */ { "source": "https://github.com/org/tools" },
  ],
}`,
			want: &Config{
				Targets: []string{"claudecode"},
				Sources: []SourceEntry{
					{Source: "acme/skills@v1", Skills: []string{"*"}},
					{Source: "https://github.com/org/tools"},
				},
			},
		},
		"unknown keys are ignored": {
			input: `{"$schema": "https://example.com/schema.json", "features": ["rules"], "sources": []}`,
			want:  &Config{Schema: "https://example.com/schema.json", Sources: []SourceEntry{}},
		},
		"malformed": {
			input:   `{"sources": [`,
			wantErr: true,
		},
		"wrong type": {
			input:   `{"sources": {"source": "a/b"}}`,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := UnmarshalConfig([]byte(tc.input))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSkillFilter(t *testing.T) {
	assert.Equal(t, []string{"*"}, SourceEntry{Source: "a/b"}.SkillFilter())
	assert.Equal(t, []string{"x", "y"}, SourceEntry{Source: "a/b", Skills: []string{"x", "y"}}.SkillFilter())
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		sources []SourceEntry
		wantErr string
	}{
		"valid": {
			sources: []SourceEntry{{Source: "acme/skills"}, {Source: "acme/skills:tools"}},
		},
		"empty source": {
			sources: []SourceEntry{{Source: " "}},
			wantErr: "source must be provided",
		},
		"unparseable source": {
			sources: []SourceEntry{{Source: "just-a-name"}},
			wantErr: "expected owner/repo",
		},
		"empty skill name": {
			sources: []SourceEntry{{Source: "a/b", Skills: []string{""}}},
			wantErr: "skill names must not be empty",
		},
		"duplicate identity": {
			sources: []SourceEntry{{Source: "Acme/Skills"}, {Source: "https://github.com/acme/skills.git"}},
			wantErr: "duplicates sources[0]",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := (&Config{Sources: tc.sources}).Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestPathAndLoad(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, FileName), Path(dir))

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(dir, PlainFileName), []byte(`{"sources":[{"source":"a/b"}]}`), 0o644))
	assert.Equal(t, filepath.Join(dir, PlainFileName), Path(dir))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []SourceEntry{{Source: "a/b"}}, cfg.Sources)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"sources":[{"source":""}]}`), 0o644))
	assert.Equal(t, filepath.Join(dir, FileName), Path(dir))
	_, err = Load(dir)
	assert.ErrorContains(t, err, "source must be provided")
}

func TestAddRemoveSourcePreservesComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	original := `{
  // keep me
  "targets": ["claudecode"],
  "sources": [
    { "source": "acme/skills" }, // first
  ],
}
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	require.NoError(t, AddSource(path, SourceEntry{Source: "org/tools", Skills: []string{"review-*"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// keep me")
	assert.Contains(t, string(data), "// first")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []SourceEntry{
		{Source: "acme/skills"},
		{Source: "org/tools", Skills: []string{"review-*"}},
	}, cfg.Sources)

	err = AddSource(path, SourceEntry{Source: "https://github.com/ACME/skills"})
	assert.ErrorContains(t, err, "already configured")

	removed, err := RemoveSource(path, "github:Acme/Skills")
	require.NoError(t, err)
	assert.Equal(t, "acme/skills", removed)

	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []SourceEntry{{Source: "org/tools", Skills: []string{"review-*"}}}, cfg.Sources)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// keep me")

	_, err = RemoveSource(path, "nobody/here")
	assert.ErrorContains(t, err, "not configured")
}

func TestAddSourceCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	require.NoError(t, AddSource(path, SourceEntry{Source: "acme/skills@v1"}))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []SourceEntry{{Source: "acme/skills@v1"}}, cfg.Sources)

	assert.Error(t, AddSource(path, SourceEntry{Source: "not a source"}))
}
