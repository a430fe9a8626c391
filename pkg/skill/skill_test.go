package skill

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, dir, content string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if content != "" || dir != "no-skill-file" {
		if err := os.WriteFile(filepath.Join(path, FileName), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		dir      string
		content  string
		wantName string
		wantDesc string
		wantErr  bool
	}{
		"valid basic skill": {
			dir:      "valid-basic",
			content:  "---\nname: my-skill\ndescription: does things\n---\n# My skill\n",
			wantName: "my-skill",
			wantDesc: "does things",
		},
		"valid skill with all fields": {
			dir:      "valid-all-fields",
			content:  "---\nname: full-skill\ndescription: full\nlicense: MIT\ncompatability: any\nallowed-tools: Read Write\nmetadata:\n  owner: acme\n---\nbody\n",
			wantName: "full-skill",
			wantDesc: "full",
		},
		"name defaults to directory": {
			dir:      "dir-named",
			content:  "---\ndescription: unnamed\n---\n",
			wantName: "dir-named",
			wantDesc: "unnamed",
		},
		"frontmatter without trailing newline": {
			dir:      "no-newline",
			content:  "---\nname: tight\ndescription: d\n---",
			wantName: "tight",
			wantDesc: "d",
		},
		"body dashes are not frontmatter": {
			dir:     "body-rule",
			content: "# Title\n\n---\nname: nope\n---\n",
			wantErr: true,
		},
		"no front matter delimiters": {
			dir:     "no-frontmatter",
			content: "# just markdown\n",
			wantErr: true,
		},
		"empty file": {
			dir:     "empty-file",
			wantErr: true,
		},
		"missing SKILL.md file": {
			dir:     "no-skill-file",
			wantErr: true,
		},
		"malformed yaml": {
			dir:     "bad-yaml",
			content: "---\nname: [unclosed\n---\n",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := writeSkill(t, t.TempDir(), tc.dir, tc.content)
			s, err := Load(dir)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Load() error = %v, wantErr = %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if s.Name() != tc.wantName {
				t.Errorf("Name() = %q, want %q", s.Name(), tc.wantName)
			}
			if s.Description() != tc.wantDesc {
				t.Errorf("Description() = %q, want %q", s.Description(), tc.wantDesc)
			}
		})
	}
}

func TestSkillAccessors(t *testing.T) {
	dir := writeSkill(t, t.TempDir(), "valid-basic", "---\nname: my-skill\ndescription: d\n---\n")
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := s.Name(); got != "my-skill" {
		t.Errorf("Name() = %q, want %q", got, "my-skill")
	}
	if got := s.Type(); got != TypeSkill {
		t.Errorf("Type() = %q, want %q", got, TypeSkill)
	}
	if got := s.Dir(); got != dir {
		t.Errorf("Dir() = %q, want %q", got, dir)
	}
}

func TestDirNames(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"writer", "alpha", ".curated", ".hidden"} {
		os.MkdirAll(filepath.Join(root, d), 0o755)
	}
	os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644)

	got, err := DirNames(root)
	if err != nil {
		t.Fatalf("DirNames() error = %v", err)
	}
	if want := []string{"alpha", "writer"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DirNames() = %v, want %v", got, want)
	}

	got, err = DirNames(filepath.Join(root, "missing"))
	if err != nil || got != nil {
		t.Errorf("DirNames(missing) = %v, %v, want nil, nil", got, err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "alpha", "---\nname: alpha\ndescription: a\n---\n")
	writeSkill(t, root, "beta", "---\nname: beta\ndescription: b\n---\n")
	writeSkill(t, root, "broken", "no frontmatter\n")
	writeSkill(t, root, ".curated/gamma", "---\nname: gamma\ndescription: g\n---\n")

	skills, err := Discover(root)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Discover() error = %v, want it to mention the broken skill", err)
	}

	var names []string
	for _, s := range skills {
		names = append(names, s.Name())
	}
	if want := []string{"alpha", "beta"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Discover() names = %v, want %v", names, want)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		skill      skill
		wantErr    bool
		wantErrMsg string
	}{
		"valid skill": {
			skill: skill{
				SkillName: "my-skill",
				Desc:      "a valid description",
			},
		},
		"valid name single char": {
			skill: skill{
				SkillName: "a",
				Desc:      "desc",
			},
		},
		"valid name max length": {
			skill: skill{
				SkillName: "a" + strings.Repeat("-a", 31),
				Desc:      "desc",
			},
		},
		"invalid name with uppercase": {
			skill: skill{
				SkillName: "My-Skill",
				Desc:      "desc",
			},
			wantErr:    true,
			wantErrMsg: "skill name must be max 64 characters",
		},
		"invalid name starts with hyphen": {
			skill: skill{
				SkillName: "-my-skill",
				Desc:      "desc",
			},
			wantErr:    true,
			wantErrMsg: "skill name must be max 64 characters",
		},
		"invalid name ends with hyphen": {
			skill: skill{
				SkillName: "my-skill-",
				Desc:      "desc",
			},
			wantErr:    true,
			wantErrMsg: "skill name must be max 64 characters",
		},
		"invalid name with underscore": {
			skill: skill{
				SkillName: "my_skill",
				Desc:      "desc",
			},
			wantErr:    true,
			wantErrMsg: "skill name must be max 64 characters",
		},
		"empty name": {
			skill: skill{
				SkillName: "",
				Desc:      "desc",
			},
			wantErr:    true,
			wantErrMsg: "skill name must be max 64 characters",
		},
		"empty description": {
			skill: skill{
				SkillName: "my-skill",
				Desc:      "",
			},
			wantErr:    true,
			wantErrMsg: "skill description must be provided",
		},
		"description too long": {
			skill: skill{
				SkillName: "my-skill",
				Desc:      strings.Repeat("a", 1025),
			},
			wantErr:    true,
			wantErrMsg: "skill description must be max 1024 characters",
		},
		"description exactly at limit": {
			skill: skill{
				SkillName: "my-skill",
				Desc:      strings.Repeat("a", 1024),
			},
		},
		"compatability too long": {
			skill: skill{
				SkillName:     "my-skill",
				Desc:          "desc",
				Compatability: strings.Repeat("a", 501),
			},
			wantErr:    true,
			wantErrMsg: "compatability must be max 500 characters",
		},
		"compatability exactly at limit": {
			skill: skill{
				SkillName:     "my-skill",
				Desc:          "desc",
				Compatability: strings.Repeat("a", 500),
			},
		},
		"multiple validation errors": {
			skill: skill{
				SkillName:     "",
				Desc:          "",
				Compatability: strings.Repeat("a", 501),
			},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.skill.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr = %v", err, tc.wantErr)
			}
			if tc.wantErrMsg != "" && err != nil {
				if !strings.Contains(err.Error(), tc.wantErrMsg) {
					t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tc.wantErrMsg)
				}
			}
		})
	}
}
