package remote

import "os"

// TokenEnvVars are consulted in order when no explicit token is given.
var TokenEnvVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// ResolveToken returns explicit when set, otherwise the first non-empty
// variable of TokenEnvVars, otherwise "" for anonymous access.
func ResolveToken(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range TokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
