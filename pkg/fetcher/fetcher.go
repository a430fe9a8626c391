// Package fetcher issues remote repository requests under a counting
// semaphore shared by an entire sync run, so that recursive fan-out within
// one skill cannot starve or rate-limit its siblings.
package fetcher

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dyoshikawa/rulesync/pkg/remote"
)

const (
	// DefaultConcurrency caps in-flight remote requests per sync run.
	DefaultConcurrency = 10
	// MaxDepth is the deepest directory level ListRecursive descends to.
	MaxDepth = 15
)

// Limiter is the shared request budget of one sync run.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter admitting n concurrent requests. n <= 0 uses
// DefaultConcurrency.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn while holding one slot. The slot is released however fn exits.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn(ctx)
}

// DepthError is returned when a listing descends past MaxDepth.
type DepthError struct {
	Path  string
	Depth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("directory %s exceeds the maximum depth of %d", e.Path, MaxDepth)
}

// Fetcher reads one repository through a shared Limiter.
type Fetcher struct {
	client remote.Client
	limit  *Limiter
	owner  string
	repo   string
}

// New returns a Fetcher for owner/repo. Every request it issues counts
// against limit.
func New(client remote.Client, limit *Limiter, owner, repo string) *Fetcher {
	return &Fetcher{client: client, limit: limit, owner: owner, repo: repo}
}

func (f *Fetcher) DefaultBranch(ctx context.Context) (string, error) {
	var branch string
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		branch, err = f.client.ResolveDefaultBranch(ctx, f.owner, f.repo)
		return err
	})
	return branch, err
}

func (f *Fetcher) ResolveCommit(ctx context.Context, ref string) (string, error) {
	var sha string
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		sha, err = f.client.ResolveRefToCommit(ctx, f.owner, f.repo, ref)
		return err
	})
	return sha, err
}

func (f *Fetcher) LatestRelease(ctx context.Context) (*remote.Release, error) {
	var rel *remote.Release
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		rel, err = f.client.GetLatestRelease(ctx, f.owner, f.repo)
		return err
	})
	return rel, err
}

func (f *Fetcher) RepositoryExists(ctx context.Context) (bool, error) {
	var ok bool
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		ok, err = f.client.RepositoryExists(ctx, f.owner, f.repo)
		return err
	})
	return ok, err
}

func (f *Fetcher) List(ctx context.Context, path, ref string) ([]remote.Entry, error) {
	var entries []remote.Entry
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = f.client.ListDirectory(ctx, f.owner, f.repo, path, ref)
		return err
	})
	return entries, err
}

func (f *Fetcher) File(ctx context.Context, path, ref string) ([]byte, error) {
	var data []byte
	err := f.limit.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = f.client.GetFileContent(ctx, f.owner, f.repo, path, ref)
		return err
	})
	return data, err
}

// ListRecursive returns every file entry below path. Subdirectories are
// listed in parallel; each listing takes its own limiter slot and the slot
// is not held while children are listed. The order of the result is not
// meaningful. Symlinks and submodules are not followed.
func (f *Fetcher) ListRecursive(ctx context.Context, path, ref string) ([]remote.Entry, error) {
	return f.listRecursive(ctx, path, ref, 0)
}

func (f *Fetcher) listRecursive(ctx context.Context, path, ref string, depth int) ([]remote.Entry, error) {
	if depth > MaxDepth {
		return nil, &DepthError{Path: path, Depth: depth}
	}

	entries, err := f.List(ctx, path, ref)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	var (
		files []remote.Entry
		dirs  []remote.Entry
	)
	for _, e := range entries {
		switch e.Type {
		case remote.EntryFile:
			files = append(files, e)
		case remote.EntryDir:
			dirs = append(dirs, e)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dirs {
		g.Go(func() error {
			sub, err := f.listRecursive(gctx, d.Path, ref, depth+1)
			if err != nil {
				return err
			}
			mu.Lock()
			files = append(files, sub...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return files, nil
}
