// Package installer synchronizes the curated skill cache and rulesync.lock
// with the sources declared in the project configuration.
package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dyoshikawa/rulesync/pkg/config"
	"github.com/dyoshikawa/rulesync/pkg/fetcher"
	"github.com/dyoshikawa/rulesync/pkg/flock"
	"github.com/dyoshikawa/rulesync/pkg/lockfile"
	"github.com/dyoshikawa/rulesync/pkg/logger"
	"github.com/dyoshikawa/rulesync/pkg/remote"
	"github.com/dyoshikawa/rulesync/pkg/skill"
	"github.com/dyoshikawa/rulesync/pkg/source"
	"github.com/dyoshikawa/rulesync/pkg/store"
)

// ErrUpdateWithFrozen is returned when both Update and Frozen are set.
var ErrUpdateWithFrozen = errors.New("--update cannot be combined with --frozen")

type Installer struct {
	// BaseDir is the project root holding rulesync.jsonc and rulesync.lock.
	BaseDir string
	// Store is the curated cache. Defaults to store.ForProject(BaseDir).
	Store store.Store
	// NewClient builds the client of a provider. Defaults to
	// remote.NewClient.
	NewClient func(p source.Provider, opts remote.Options) (remote.Client, error)
	// Now stamps resolvedAt. Defaults to time.Now.
	Now func() time.Time
}

type Options struct {
	// Update re-resolves every ref and refetches every skill.
	Update bool
	// Frozen verifies the lockfile and cache against the configuration
	// without any network access and never writes.
	Frozen bool
	// Token authenticates remote requests. Empty falls back to the
	// environment.
	Token string
	// Concurrency caps in-flight remote requests for the whole run.
	Concurrency int
}

type Result struct {
	FetchedSkillCount int
	SourcesProcessed  int
}

// FrozenReason tells which part of the lockfile or cache a frozen install
// found out of date.
type FrozenReason int

const (
	// SourceNotLocked: the source has no lockfile entry.
	SourceNotLocked FrozenReason = iota
	// RefChanged: the configured ref differs from the locked requestedRef.
	RefChanged
	// SkillNotLocked: a skill named in the filter is missing from the entry.
	SkillNotLocked
	// SkillNotCached: a locked skill has no directory in the cache.
	SkillNotCached
)

// FrozenError reports a gap between configuration, lockfile and cache
// found by a frozen install.
type FrozenError struct {
	Reason FrozenReason
	Source string
	// Skill is empty unless Reason is SkillNotLocked or SkillNotCached.
	Skill string
	// Ref and LockedRef are the configured and locked refs for RefChanged.
	Ref       string
	LockedRef string
}

func (e *FrozenError) Error() string {
	switch e.Reason {
	case RefChanged:
		return fmt.Sprintf("frozen install: source %q is locked for ref %q but configured for %q; run install without --frozen to update it",
			e.Source, e.LockedRef, e.Ref)
	case SkillNotLocked:
		return fmt.Sprintf("frozen install: skill %q of source %q is not in %s; run install without --frozen to update it",
			e.Skill, e.Source, lockfile.FileName)
	case SkillNotCached:
		return fmt.Sprintf("frozen install: skill %q of source %q is missing from %s; run install without --frozen to restore it",
			e.Skill, e.Source, filepath.Join(store.ConfigDir, "skills", store.CuratedDirName))
	default:
		return fmt.Sprintf("frozen install: source %q is not in %s; run install without --frozen to update it", e.Source, lockfile.FileName)
	}
}

// store returns the configured cache or the project default. It never
// writes to inst.
func (inst *Installer) store() store.Store {
	if inst.Store != nil {
		return inst.Store
	}
	return store.ForProject(inst.BaseDir)
}

func (inst *Installer) now() time.Time {
	if inst.Now != nil {
		return inst.Now()
	}
	return time.Now()
}

// entry is a configured source after parsing, with the client serving it.
type entry struct {
	config.SourceEntry
	ref    source.Reference
	client remote.Client
}

func (e *entry) key() string {
	return e.ref.Key()
}

// prepare parses every entry and builds its client without touching the
// network, so configuration errors abort before any request is made.
func (inst *Installer) prepare(entries []config.SourceEntry, token string) ([]*entry, error) {
	newClient := inst.NewClient
	if newClient == nil {
		newClient = remote.NewClient
	}

	clients := map[source.Provider]remote.Client{}
	seen := map[string]string{}
	out := make([]*entry, 0, len(entries))
	for i, e := range entries {
		ref, err := source.Parse(e.Source)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		for _, pattern := range e.SkillFilter() {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("sources[%d]: invalid skill pattern %q", i, pattern)
			}
		}

		norm := lockfile.NormalizeSourceKey(ref.Key())
		if prev, ok := seen[norm]; ok {
			return nil, fmt.Errorf("sources[%d]: %q duplicates %q", i, e.Source, prev)
		}
		seen[norm] = e.Source

		client, ok := clients[ref.Provider]
		if !ok {
			client, err = newClient(ref.Provider, remote.Options{Token: token})
			if err != nil {
				return nil, fmt.Errorf("sources[%d] %q: %w", i, e.Source, err)
			}
			clients[ref.Provider] = client
		}

		out = append(out, &entry{SourceEntry: e, ref: ref, client: client})
	}
	return out, nil
}

// run holds the state shared by the sources of one install.
type run struct {
	opts     Options
	hasToken bool
	lock     *lockfile.Lockfile
	limit    *fetcher.Limiter
	local    map[string]bool
	// claimed maps skill names materialized this run to the key of the
	// source that owns them.
	claimed map[string]string
}

// Install brings the curated cache and lockfile in line with entries.
// Configuration and frozen-mode errors are returned; failures of individual
// sources are logged and the run continues with the next source.
func (inst *Installer) Install(ctx context.Context, entries []config.SourceEntry, opts Options) (*Result, error) {
	if opts.Update && opts.Frozen {
		return nil, ErrUpdateWithFrozen
	}

	token := remote.ResolveToken(opts.Token)
	parsed, err := inst.prepare(entries, token)
	if err != nil {
		return nil, err
	}

	if !opts.Frozen {
		l, err := flock.Acquire(store.InstallLockFile(inst.BaseDir))
		if err != nil {
			if errors.Is(err, flock.ErrLocked) {
				return nil, fmt.Errorf("another install is running: %w", err)
			}
			return nil, err
		}
		defer l.Release()
	}

	lf := lockfile.Read(ctx, inst.BaseDir)
	before, err := lockfile.Marshal(lf)
	if err != nil {
		return nil, err
	}

	localNames, err := skill.DirNames(store.SkillsDir(inst.BaseDir))
	if err != nil {
		return nil, fmt.Errorf("listing local skills: %w", err)
	}
	local := make(map[string]bool, len(localNames))
	for _, name := range localNames {
		local[name] = true
	}

	if opts.Frozen {
		if err := inst.checkFrozen(parsed, lf, local); err != nil {
			return nil, err
		}
		logger.G(ctx).Debug("frozen install: lockfile and cache match the configuration")
		return &Result{SourcesProcessed: len(parsed)}, nil
	}

	r := &run{
		opts:     opts,
		hasToken: token != "",
		lock:     lf,
		limit:    fetcher.NewLimiter(opts.Concurrency),
		local:    local,
		claimed:  map[string]string{},
	}

	res := &Result{}
	for _, e := range parsed {
		res.SourcesProcessed++
		sctx := logger.WithFields(ctx, logrus.Fields{"source": e.Source})

		n, err := inst.syncSource(sctx, r, e)
		if err != nil {
			log := logger.G(sctx).WithError(err)
			if hint := remote.Hint(err, r.hasToken); hint != "" {
				log = log.WithField("hint", hint)
			}
			log.Error("failed to sync source")
			continue
		}
		res.FetchedSkillCount += n
	}

	inst.prune(ctx, r, parsed)

	after, err := lockfile.Marshal(lf)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(before, after) {
		if err := lockfile.Write(inst.BaseDir, lf); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// checkFrozen verifies that every configured source is locked for its
// configured ref, every literal skill it asks for is locked unless a local
// skill shadows it, and every locked skill is present in the cache.
func (inst *Installer) checkFrozen(parsed []*entry, lf *lockfile.Lockfile, local map[string]bool) error {
	cache := inst.store()
	for _, e := range parsed {
		locked, ok := lf.GetLockedSource(e.key())
		if !ok {
			return &FrozenError{Reason: SourceNotLocked, Source: e.Source}
		}
		if locked.RequestedRef != e.ref.Ref {
			return &FrozenError{Reason: RefChanged, Source: e.Source, Ref: e.ref.Ref, LockedRef: locked.RequestedRef}
		}
		for _, pattern := range e.SkillFilter() {
			if !isLiteral(pattern) || local[pattern] {
				continue
			}
			if _, ok := locked.Skills[pattern]; !ok {
				return &FrozenError{Reason: SkillNotLocked, Source: e.Source, Skill: pattern}
			}
		}
		for _, name := range sortedSkillNames(locked.Skills) {
			if !safeName(name) {
				return &FrozenError{Reason: SkillNotCached, Source: e.Source, Skill: name}
			}
			exists, err := cache.Exists(name)
			if err != nil {
				return fmt.Errorf("checking cached skill %q: %w", name, err)
			}
			if !exists {
				return &FrozenError{Reason: SkillNotCached, Source: e.Source, Skill: name}
			}
		}
	}
	return nil
}

// syncSource runs one source through resolve, list, filter, fetch and
// merge, and returns the number of skills fetched.
func (inst *Installer) syncSource(ctx context.Context, r *run, e *entry) (int, error) {
	log := logger.G(ctx)
	f := fetcher.New(e.client, r.limit, e.ref.Owner, e.ref.Repo)
	locked, hasLock := r.lock.GetLockedSource(e.key())

	sha, err := inst.resolve(ctx, r, e, f, locked)
	if err != nil {
		return 0, err
	}
	ctx = logger.WithFields(ctx, logrus.Fields{"ref": sha})
	sameCommit := hasLock && locked.ResolvedRef == sha

	if sameCommit && !r.opts.Update && inst.cacheHit(r, e, locked) {
		log.Debug("lockfile is current, skipping fetch")
		for name := range locked.Skills {
			r.claimed[name] = e.key()
		}
		if locked.RequestedRef != e.ref.Ref {
			updated := *locked
			updated.RequestedRef = e.ref.Ref
			r.lock.SetLockedSource(e.key(), &updated)
		}
		return 0, nil
	}

	remoteNames, err := listSkills(ctx, f, e.ref.Path, sha)
	if err != nil {
		return 0, err
	}
	selected, rejected := inst.filter(ctx, r, e, remoteNames)

	var previous map[string]lockfile.LockedSkill
	if hasLock {
		previous = locked.Skills
	}
	inst.cleanup(ctx, r, e, previous, selected, rejected, sameCommit)

	fetched, err := inst.fetchSkills(ctx, f, e, selected, sha)
	if err != nil {
		return 0, err
	}

	skills := make(map[string]lockfile.LockedSkill, len(fetched))
	for name, integrity := range fetched {
		if prev, ok := previous[name]; ok && sameCommit && prev.Integrity != "" && prev.Integrity != integrity {
			logger.G(ctx).WithFields(logrus.Fields{
				"skill":    name,
				"locked":   prev.Integrity,
				"computed": integrity,
			}).Warn("skill content changed without a commit change; the ref may be a mutable tag or the lockfile was edited")
		}
		skills[name] = lockfile.LockedSkill{Integrity: integrity}
		r.claimed[name] = e.key()
	}
	if sameCommit {
		for name, ls := range previous {
			if _, done := skills[name]; done || rejected[name] || !inst.keepable(r, e, name) {
				continue
			}
			skills[name] = ls
			r.claimed[name] = e.key()
		}
	}

	resolvedAt := inst.now().UTC().Format(time.RFC3339)
	if sameCommit && locked.ResolvedAt != "" {
		resolvedAt = locked.ResolvedAt
	}
	r.lock.SetLockedSource(e.key(), &lockfile.LockedSource{
		RequestedRef: e.ref.Ref,
		ResolvedRef:  sha,
		ResolvedAt:   resolvedAt,
		Skills:       skills,
	})

	return len(fetched), nil
}

// resolve returns the commit to sync. A locked commit is reused without a
// request when the configured ref is unchanged and no update was asked
// for.
func (inst *Installer) resolve(ctx context.Context, r *run, e *entry, f *fetcher.Fetcher, locked *lockfile.LockedSource) (string, error) {
	if locked != nil && !r.opts.Update && locked.RequestedRef == e.ref.Ref && remote.IsCommitSHA(locked.ResolvedRef) {
		return locked.ResolvedRef, nil
	}

	ref := e.ref.Ref
	if ref == "" {
		branch, err := f.DefaultBranch(ctx)
		if err != nil {
			return "", fmt.Errorf("resolving default branch: %w", err)
		}
		ref = branch
	}
	sha, err := f.ResolveCommit(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	return sha, nil
}

// cacheHit reports whether every locked skill of the source is on disk and
// still owned by it, and every explicitly requested skill it could own is
// locked.
func (inst *Installer) cacheHit(r *run, e *entry, locked *lockfile.LockedSource) bool {
	for name := range locked.Skills {
		if !inst.keepable(r, e, name) {
			return false
		}
		if exists, err := inst.store().Exists(name); err != nil || !exists {
			return false
		}
	}
	for _, pattern := range e.SkillFilter() {
		if isLiteral(pattern) && inst.keepable(r, e, pattern) {
			if _, ok := locked.Skills[pattern]; !ok {
				return false
			}
		}
	}
	return true
}

// keepable reports whether a previously locked skill may stay with e: it
// must not be shadowed by a local skill or claimed by another source.
func (inst *Installer) keepable(r *run, e *entry, name string) bool {
	if r.local[name] {
		return false
	}
	owner, claimed := r.claimed[name]
	return !claimed || owner == e.key()
}

func listSkills(ctx context.Context, f *fetcher.Fetcher, root, sha string) ([]string, error) {
	entries, err := f.List(ctx, root, sha)
	if remote.IsNotFound(err) {
		logger.G(ctx).WithField("path", root).Warn("source has no skills directory at this commit")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type == remote.EntryDir {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// filter applies the skill patterns and precedence rules to the remote
// skill names. rejected holds names that matched but may not be fetched.
func (inst *Installer) filter(ctx context.Context, r *run, e *entry, remoteNames []string) (selected []string, rejected map[string]bool) {
	log := logger.G(ctx)
	patterns := e.SkillFilter()
	rejected = map[string]bool{}

	available := make(map[string]bool, len(remoteNames))
	for _, name := range remoteNames {
		available[name] = true
	}
	for _, p := range patterns {
		if isLiteral(p) && !available[p] {
			log.WithField("skill", p).Warn("requested skill not found in source")
		}
	}

	for _, name := range remoteNames {
		if !matchAny(patterns, name) {
			continue
		}
		slog := log.WithField("skill", name)
		switch {
		case !safeName(name):
			slog.Warn("skipping skill with an unsafe name")
			rejected[name] = true
		case r.local[name]:
			slog.Debug("skipping remote skill shadowed by a local skill")
			rejected[name] = true
		case r.claimed[name] != "" && r.claimed[name] != e.key():
			slog.WithField("claimedBy", r.claimed[name]).Warn("skipping duplicate skill already provided by another source")
			rejected[name] = true
		default:
			selected = append(selected, name)
		}
	}
	return selected, rejected
}

// cleanup removes cached directories the source owned that are about to be
// refetched, were rejected this run, are now shadowed by a local skill, or
// drop out because the commit moved. Directories claimed by another source
// this run are left alone.
func (inst *Installer) cleanup(ctx context.Context, r *run, e *entry, previous map[string]lockfile.LockedSkill, selected []string, rejected map[string]bool, sameCommit bool) {
	refetch := make(map[string]bool, len(selected))
	for _, name := range selected {
		refetch[name] = true
	}

	for _, name := range sortedSkillNames(previous) {
		if sameCommit && !refetch[name] && !rejected[name] && !r.local[name] {
			continue
		}
		if owner, ok := r.claimed[name]; ok && owner != e.key() {
			continue
		}
		if err := inst.store().Remove(name); err != nil {
			logger.G(ctx).WithField("skill", name).WithError(err).Warn("not removing cached skill")
		}
	}
}

// fetchSkills downloads every selected skill concurrently and returns
// their integrity hashes.
func (inst *Installer) fetchSkills(ctx context.Context, f *fetcher.Fetcher, e *entry, names []string, sha string) (map[string]string, error) {
	var mu sync.Mutex
	out := make(map[string]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			sctx := logger.WithFields(gctx, logrus.Fields{"skill": name})
			integrity, err := inst.fetchSkill(sctx, f, path.Join(e.ref.Path, name), name, sha)
			if err != nil {
				return fmt.Errorf("fetching skill %q: %w", name, err)
			}
			mu.Lock()
			out[name] = integrity
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (inst *Installer) fetchSkill(ctx context.Context, f *fetcher.Fetcher, remoteDir, name, sha string) (string, error) {
	log := logger.G(ctx)

	entries, err := f.ListRecursive(ctx, remoteDir, sha)
	if err != nil {
		return "", err
	}
	// The directory may hold files of a previous owner or an older lock.
	if err := inst.store().Remove(name); err != nil {
		return "", fmt.Errorf("clearing cache directory: %w", err)
	}
	if err := inst.store().EnsureDir(name); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	var (
		mu    sync.Mutex
		files []lockfile.SkillFile
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ent := range entries {
		flog := log.WithField("path", ent.Path)
		if ent.Size > remote.MaxFileSize {
			flog.WithField("size", ent.Size).Warn("skipping file larger than the download limit")
			continue
		}
		rel, ok := relativeSkillPath(remoteDir, ent.Path)
		if !ok {
			flog.Warn("skipping file with an unsafe path")
			continue
		}

		g.Go(func() error {
			data, err := f.File(gctx, ent.Path, sha)
			var tooLarge *remote.FileTooLargeError
			if errors.As(err, &tooLarge) {
				flog.Warn("skipping file larger than the download limit")
				return nil
			}
			if err != nil {
				return err
			}
			if err := inst.store().WriteFile(data, append([]string{name}, strings.Split(rel, "/")...)...); err != nil {
				return fmt.Errorf("writing %s: %w", rel, err)
			}
			mu.Lock()
			files = append(files, lockfile.SkillFile{Path: rel, Content: data})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return lockfile.ComputeSkillIntegrity(files), nil
}

// prune drops lock entries of sources no longer configured, together with
// their cached skills unless another source now provides them.
func (inst *Installer) prune(ctx context.Context, r *run, parsed []*entry) {
	configured := make([]string, 0, len(parsed))
	for _, e := range parsed {
		configured = append(configured, e.key())
	}

	snapshot := make(map[string]*lockfile.LockedSource, len(r.lock.Sources))
	for k, v := range r.lock.Sources {
		snapshot[k] = v
	}

	for _, key := range r.lock.Prune(configured) {
		log := logger.G(ctx).WithField("source", key)
		log.Info("removing source that is no longer configured")
		for _, name := range sortedSkillNames(snapshot[key].Skills) {
			if _, ok := r.claimed[name]; ok {
				continue
			}
			if _, ok := r.lock.SkillOwner(name); ok {
				continue
			}
			if err := inst.store().Remove(name); err != nil {
				log.WithField("skill", name).WithError(err).Warn("not removing cached skill")
			}
		}
	}
}

func sortedSkillNames(skills map[string]lockfile.LockedSkill) []string {
	names := make([]string, 0, len(skills))
	for name := range skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, `*?[{\`)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == config.WildcardSkill {
			return true
		}
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// safeName rejects skill names that could address anything but a direct
// child of the cache root.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// relativeSkillPath returns p relative to dir when it is a clean path
// strictly inside it.
func relativeSkillPath(dir, p string) (string, bool) {
	rel, ok := strings.CutPrefix(p, dir+"/")
	if !ok || rel == "" || strings.Contains(rel, `\`) || path.IsAbs(rel) {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return rel, true
}
