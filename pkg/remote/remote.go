// Package remote defines the provider-agnostic contract used to read skill
// directories from a hosted repository, together with the error taxonomy
// every provider maps its failures into.
package remote

import (
	"context"
)

// MaxFileSize is the largest file a provider will download.
const MaxFileSize = 10 << 20

// EntryType is the kind of a directory listing entry.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDir       EntryType = "dir"
	EntrySymlink   EntryType = "symlink"
	EntrySubmodule EntryType = "submodule"
)

// Entry is one item of a directory listing. Path is relative to the
// repository root.
type Entry struct {
	Name string
	Path string
	SHA  string
	Size int64
	Type EntryType
}

// Release is the subset of release metadata the installer reports.
type Release struct {
	TagName     string
	Name        string
	PublishedAt string
}

// Client reads repositories on one host. Every method may return *Error.
type Client interface {
	// ResolveDefaultBranch returns the repository's default branch name.
	ResolveDefaultBranch(ctx context.Context, owner, repo string) (string, error)
	// ResolveRefToCommit resolves a branch, tag or SHA to a full commit SHA.
	ResolveRefToCommit(ctx context.Context, owner, repo, ref string) (string, error)
	// ListDirectory lists path at ref. It returns a not-found *Error when
	// path is missing or is not a directory.
	ListDirectory(ctx context.Context, owner, repo, path, ref string) ([]Entry, error)
	// GetFileContent returns the raw bytes of path at ref. Files larger than
	// MaxFileSize fail with *FileTooLargeError.
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	// GetLatestRelease returns the newest published release.
	GetLatestRelease(ctx context.Context, owner, repo string) (*Release, error)
	// RepositoryExists reports whether owner/repo is visible to the client.
	RepositoryExists(ctx context.Context, owner, repo string) (bool, error)
}

// IsCommitSHA reports whether s is a full 40-character hex SHA-1.
func IsCommitSHA(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
