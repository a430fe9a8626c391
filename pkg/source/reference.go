package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider names a remote repository host.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"

	// DefaultProvider is assumed when a source carries no URL host or
	// provider prefix.
	DefaultProvider = ProviderGitHub

	// DefaultSkillsPath is the repository directory whose children are
	// treated as skills when the source names no path.
	DefaultSkillsPath = "skills"
)

var (
	knownProviders = []Provider{ProviderGitHub, ProviderGitLab}

	providerHosts = map[string]Provider{
		"github.com": ProviderGitHub,
		"gitlab.com": ProviderGitLab,
	}
)

// Reference is the structured form of a source string.
type Reference struct {
	Provider Provider
	Owner    string
	Repo     string
	// Ref is a branch, tag or commit SHA. Empty means the default branch.
	Ref string
	// Path is the skills root inside the repository.
	Path string
}

// Key returns the ref-independent identity of the reference:
// [provider:]owner/repo[:path]. The provider prefix is omitted for the
// default provider and the path suffix for the default skills path, so
// "acme/skills@v1" and "https://github.com/acme/skills" share a key.
func (r Reference) Key() string {
	key := r.Owner + "/" + r.Repo
	if r.Provider != DefaultProvider {
		key = string(r.Provider) + ":" + key
	}
	if r.Path != DefaultSkillsPath {
		key += ":" + r.Path
	}
	return key
}

func (r Reference) String() string {
	if r.Ref == "" {
		return r.Key()
	}
	return r.Key() + "@" + r.Ref
}

// ParseError reports a malformed source string. Fragment is the exact
// portion of the input that could not be interpreted.
type ParseError struct {
	Input    string
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" || e.Fragment == e.Input {
		return fmt.Sprintf("invalid source %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid source %q: %s in %q", e.Input, e.Reason, e.Fragment)
}

// Parse parses a source string. Accepted forms:
//
//	https://github.com/owner/repo[/tree/<ref>/<path>]
//	owner/repo[@ref][:path]
//	<provider>:owner/repo[@ref][:path]
//
// Parse performs no I/O.
func Parse(input string) (Reference, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Reference{}, &ParseError{Input: input, Reason: "source is empty"}
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return parseURL(input, s)
	}

	// A provider prefix is only recognized when its colon comes before the
	// first slash, so "owner/repo:path" is not mistaken for one.
	if colon := strings.Index(s, ":"); colon > 0 {
		slash := strings.Index(s, "/")
		if slash == -1 || colon < slash {
			if p, ok := lookupProvider(s[:colon]); ok {
				return parseShorthand(input, s[colon+1:], p)
			}
		}
	}

	return parseShorthand(input, s, DefaultProvider)
}

func parseURL(input, s string) (Reference, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Reference{}, &ParseError{Input: input, Fragment: s, Reason: fmt.Sprintf("malformed URL (%v)", err)}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	provider, ok := providerHosts[host]
	if !ok {
		return Reference{}, &ParseError{Input: input, Fragment: u.Host, Reason: "unknown repository host"}
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) < 2 {
		return Reference{}, &ParseError{Input: input, Fragment: u.Path, Reason: "URL path must contain owner/repo"}
	}

	ref := Reference{
		Provider: provider,
		Owner:    segments[0],
		Repo:     strings.TrimSuffix(segments[1], ".git"),
		Path:     DefaultSkillsPath,
	}
	if ref.Repo == "" {
		return Reference{}, &ParseError{Input: input, Fragment: segments[1], Reason: "repository name is empty"}
	}

	if len(segments) > 2 && (segments[2] == "tree" || segments[2] == "blob") {
		if len(segments) < 4 {
			return Reference{}, &ParseError{Input: input, Fragment: u.Path, Reason: "missing ref after /" + segments[2]}
		}
		ref.Ref = segments[3]
		if len(segments) > 4 {
			ref.Path = strings.Join(segments[4:], "/")
		}
	}

	if err := checkPath(input, ref.Path); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// parseShorthand handles owner/repo[@ref][:path]. The ":path" part is split
// off before "@ref" is looked for, so the ref must precede the path.
func parseShorthand(input, s string, provider Provider) (Reference, error) {
	rest := s
	path := DefaultSkillsPath

	if colon := strings.Index(rest, ":"); colon >= 0 {
		raw := rest[colon+1:]
		rest = rest[:colon]
		path = strings.Trim(raw, "/")
		if path == "" {
			return Reference{}, &ParseError{Input: input, Fragment: ":" + raw, Reason: "empty path after ':'"}
		}
		if strings.Contains(path, "@") {
			return Reference{}, &ParseError{Input: input, Fragment: ":" + raw, Reason: "ambiguous '@' in path (write owner/repo@ref:path)"}
		}
	}

	var gitRef string
	if at := strings.Index(rest, "@"); at >= 0 {
		gitRef = rest[at+1:]
		rest = rest[:at]
		if gitRef == "" {
			return Reference{}, &ParseError{Input: input, Fragment: rest + "@", Reason: "empty ref after '@'"}
		}
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return Reference{}, &ParseError{Input: input, Fragment: rest, Reason: "expected owner/repo"}
	}
	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if owner == "" {
		return Reference{}, &ParseError{Input: input, Fragment: rest, Reason: "owner is empty"}
	}
	if repo == "" {
		return Reference{}, &ParseError{Input: input, Fragment: rest, Reason: "repository name is empty"}
	}

	if err := checkPath(input, path); err != nil {
		return Reference{}, err
	}

	return Reference{
		Provider: provider,
		Owner:    owner,
		Repo:     repo,
		Ref:      gitRef,
		Path:     path,
	}, nil
}

func checkPath(input, path string) error {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." || strings.Contains(seg, `\`) {
			return &ParseError{Input: input, Fragment: path, Reason: "path must not contain '.', '..' or backslashes"}
		}
	}
	return nil
}

func lookupProvider(name string) (Provider, bool) {
	for _, p := range knownProviders {
		if strings.EqualFold(name, string(p)) {
			return p, true
		}
	}
	return "", false
}
