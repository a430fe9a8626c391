package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveToken(t *testing.T) {
	tests := map[string]struct {
		explicit    string
		githubToken string
		ghToken     string
		want        string
	}{
		"explicit wins":          {explicit: "flag", githubToken: "env1", ghToken: "env2", want: "flag"},
		"GITHUB_TOKEN before GH": {githubToken: "env1", ghToken: "env2", want: "env1"},
		"GH_TOKEN fallback":      {ghToken: "env2", want: "env2"},
		"anonymous":              {want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tc.githubToken)
			t.Setenv("GH_TOKEN", tc.ghToken)
			assert.Equal(t, tc.want, ResolveToken(tc.explicit))
		})
	}
}
