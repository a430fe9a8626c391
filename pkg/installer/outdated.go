package installer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/fetcher"
	"github.com/dyoshikawa/rulesync/pkg/lockfile"
	"github.com/dyoshikawa/rulesync/pkg/remote"
)

type SourceStatus struct {
	Source string
	// Ref is the configured ref, or the default branch when none is set.
	Ref           string
	LockedCommit  string
	LatestCommit  string
	LatestRelease string
	Outdated      bool
	// Err is set when the source could not be checked.
	Err error
}

// Outdated compares the locked commit of every source with what its ref
// resolves to now. Sources are checked concurrently under one request
// limit; a failing source is reported in its status rather than aborting.
func (inst *Installer) Outdated(ctx context.Context, entries []config.SourceEntry, opts Options) ([]SourceStatus, error) {
	parsed, err := inst.prepare(entries, remote.ResolveToken(opts.Token))
	if err != nil {
		return nil, err
	}
	lf := lockfile.Read(ctx, inst.BaseDir)
	limit := fetcher.NewLimiter(opts.Concurrency)

	out := make([]SourceStatus, len(parsed))
	var wg sync.WaitGroup
	for i, e := range parsed {
		wg.Go(func() {
			st := SourceStatus{Source: e.Source}
			if locked, ok := lf.GetLockedSource(e.key()); ok {
				st.LockedCommit = locked.ResolvedRef
			}
			st.Err = inst.checkSource(ctx, fetcher.New(e.client, limit, e.ref.Owner, e.ref.Repo), e, &st)
			out[i] = st
		})
	}
	wg.Wait()
	return out, nil
}

func (inst *Installer) checkSource(ctx context.Context, f *fetcher.Fetcher, e *entry, st *SourceStatus) error {
	exists, err := f.RepositoryExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("repository %s/%s not found", e.ref.Owner, e.ref.Repo)
	}

	st.Ref = e.ref.Ref
	if st.Ref == "" {
		if st.Ref, err = f.DefaultBranch(ctx); err != nil {
			return fmt.Errorf("resolving default branch: %w", err)
		}
	}
	if st.LatestCommit, err = f.ResolveCommit(ctx, st.Ref); err != nil {
		return fmt.Errorf("resolving %s: %w", st.Ref, err)
	}

	rel, err := f.LatestRelease(ctx)
	switch {
	case remote.IsNotFound(err):
	case err != nil:
		return fmt.Errorf("fetching latest release: %w", err)
	default:
		st.LatestRelease = rel.TagName
	}

	st.Outdated = st.LockedCommit != st.LatestCommit
	return nil
}
