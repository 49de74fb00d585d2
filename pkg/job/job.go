// Package job wires walking, diffing, partitioning, staging and execution
// into the compare, copy, plan and run-group operations.
package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/manifest"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/plan"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/storage"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/walker"
)

// ErrConfig marks errors raised before any listing or transfer starts.
var ErrConfig = errors.New("configuration error")

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

type Options struct {
	Src  string
	Dest string
	// Manifest is a backend-qualified manifest seed. When set, its pairs are
	// used instead of walking Src and Dest.
	Manifest string

	Excludes    []string
	IncludeDirs bool
	// SkipExisting limits a copy to entries the destination lacks or holds
	// with different metadata.
	SkipExisting bool

	Groups      int
	UnitWeight  int64
	Parallelism int
	StagingDir  string

	Walk     walker.Options
	Executor executor.Options
	Logger   logger.Logger
}

type Job struct {
	sources  walker.Sources
	resolver *storage.Resolver
	opts     Options
}

func New(objectStores objstore.Factory, fileSystems fsys.Factory, opts Options) *Job {
	if opts.Groups <= 0 {
		opts.Groups = 1
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Logger == nil {
		opts.Logger = &logger.NullLogger{}
	}
	opts.Walk.Excludes = opts.Excludes
	if opts.Executor.Logger == nil {
		opts.Executor.Logger = opts.Logger
	}
	return &Job{
		sources:  walker.Sources{ObjectStores: objectStores, FileSystems: fileSystems},
		resolver: &storage.Resolver{ObjectStores: objectStores, FileSystems: fileSystems},
		opts:     opts,
	}
}

func (j *Job) validate() error {
	if j.opts.UnitWeight < 0 {
		return configError("unit weight must not be negative, got %d", j.opts.UnitWeight)
	}
	if err := walker.ValidateExcludes(j.opts.Excludes); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if j.opts.Manifest != "" {
		if err := backend.RequireSupported(j.opts.Manifest); err != nil {
			return fmt.Errorf("%w: manifest: %v", ErrConfig, err)
		}
		return nil
	}
	if j.opts.Src == "" || j.opts.Dest == "" {
		return configError("source and destination paths are required")
	}
	if err := backend.RequireSupported(j.opts.Src, j.opts.Dest); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// walkBoth lists source and destination concurrently. With allowMissingDest
// a destination that does not exist yet lists as empty.
func (j *Job) walkBoth(ctx context.Context, allowMissingDest bool) (src, dest *listing.Listing, err error) {
	j.opts.Logger.PhaseStart("walk", 2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		src, err = walker.Walk(gctx, j.opts.Src, j.sources, j.opts.Walk)
		return err
	})
	g.Go(func() error {
		var err error
		dest, err = walker.Walk(gctx, j.opts.Dest, j.sources, j.opts.Walk)
		if err != nil && allowMissingDest && errors.Is(err, fs.ErrNotExist) {
			loc, _ := backend.Parse(j.opts.Dest)
			dest, err = listing.New(loc.String(), loc.Kind), nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	j.opts.Logger.PhaseComplete("walk", 2)
	return src, dest, nil
}

// singleFile reports whether l is the one-entry listing of a base that named
// a file.
func singleFile(l *listing.Listing, base string) bool {
	loc, err := backend.Parse(base)
	return err == nil && l.Base != loc.String()
}

func (j *Job) readManifest(ctx context.Context) ([]pairs.FilePair, error) {
	sess := j.resolver.NewSession()
	defer sess.Close()

	loc, err := backend.Parse(j.opts.Manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrConfig, err)
	}
	st, err := sess.For(ctx, loc)
	if err != nil {
		return nil, err
	}
	rc, err := st.Open(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", j.opts.Manifest, err)
	}
	defer rc.Close()
	return manifest.ReadPairs(rc)
}

// comparePairs returns the diff of the two trees and the matched files whose
// content is to be verified. With a manifest seed there is no diff and every
// pair is verified.
func (j *Job) comparePairs(ctx context.Context) (*listing.DiffResult, []pairs.FilePair, error) {
	if j.opts.Manifest != "" {
		ps, err := j.readManifest(ctx)
		return nil, ps, err
	}

	src, dest, err := j.walkBoth(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	result := listing.Diff(src, dest, listing.DiffOptions{IncludeDirs: j.opts.IncludeDirs})
	mapper, err := plan.NewMapper(src.Base, dest.Base)
	if err != nil {
		return nil, nil, err
	}
	return &result, mapper.VerifyPairs(result), nil
}

// copyPairs returns the pairs a copy transfers.
func (j *Job) copyPairs(ctx context.Context) ([]pairs.FilePair, error) {
	if j.opts.Manifest != "" {
		return j.readManifest(ctx)
	}

	var (
		src  *listing.Listing
		dest *listing.Listing
		err  error
	)
	if j.opts.SkipExisting {
		src, dest, err = j.walkBoth(ctx, true)
	} else {
		src, err = walker.Walk(ctx, j.opts.Src, j.sources, j.opts.Walk)
	}
	if err != nil {
		return nil, err
	}

	if singleFile(src, j.opts.Src) {
		e := src.Entries()[0]
		if dest != nil && singleFile(dest, j.opts.Dest) {
			if d := dest.Entries()[0]; d.IsFile && d.Size == e.Size {
				return nil, nil
			}
		}
		return []pairs.FilePair{{
			Src:    backend.Normalize(j.opts.Src),
			Dest:   backend.Normalize(j.opts.Dest),
			IsFile: true,
			Size:   e.Size,
		}}, nil
	}

	mapper, err := plan.NewMapper(src.Base, backend.Normalize(j.opts.Dest))
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return mapper.CopyPairs(src), nil
	}
	result := listing.Diff(src, dest, listing.DiffOptions{IncludeDirs: true})
	return mapper.MissingPairs(result), nil
}

// stage partitions ps and writes every group beneath the staging directory.
func (j *Job) stage(ctx context.Context, runID string, ps []pairs.FilePair) ([]*pairs.Group, []string, error) {
	j.opts.Logger.PhaseStart("partition", len(ps))
	groups, err := pairs.Partition(ps, j.opts.Groups, j.opts.UnitWeight)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	j.opts.Logger.PhaseComplete("partition", len(ps))

	sess := j.resolver.NewSession()
	defer sess.Close()
	paths, err := manifest.Stage(ctx, sess, j.opts.StagingDir, runID, groups)
	if err != nil {
		return nil, nil, err
	}
	return groups, paths, nil
}

// execute stages ps and runs every group in-process, at most Parallelism at
// a time.
func (j *Job) execute(ctx context.Context, report *Report, mode executor.Mode, ps []pairs.FilePair) error {
	groups, paths, err := j.stage(ctx, report.RunID, ps)
	if err != nil {
		return err
	}
	report.Groups = make([]GroupReport, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Parallelism)
	for i := range groups {
		g.Go(func() error {
			res, _, err := j.runStaged(gctx, paths[i], mode)
			if err != nil {
				return fmt.Errorf("group %d: %w", groups[i].ID, err)
			}
			report.Groups[i] = newGroupReport(groups[i], paths[i], res)
			report.addResult(res)
			return nil
		})
	}
	return g.Wait()
}

// runStaged loads one staged group and executes it. It also returns the
// number of pairs in the group.
func (j *Job) runStaged(ctx context.Context, path string, mode executor.Mode) (*executor.Result, int, error) {
	sess := j.resolver.NewSession()
	ps, err := manifest.Load(ctx, sess, path)
	sess.Close()
	if err != nil {
		return nil, 0, err
	}

	opts := j.opts.Executor
	opts.Mode = mode
	res, err := executor.New(j.resolver, opts).Run(ctx, ps)
	if err != nil {
		return nil, 0, err
	}
	return res, len(ps), nil
}

// Compare diffs source and destination by metadata and, when checksums are
// enabled, verifies the content of every matched file.
func (j *Job) Compare(ctx context.Context) (*Report, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}
	report := newReport("compare", j.opts)
	start := time.Now()

	result, verify, err := j.comparePairs(ctx)
	if err != nil {
		return nil, err
	}
	if result != nil {
		report.addDiff(*result)
	}
	if j.opts.Executor.Checksum && len(verify) > 0 {
		if err := j.execute(ctx, report, executor.ModeVerify, verify); err != nil {
			return nil, err
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}

// Copy transfers every source entry, or with SkipExisting only the entries
// the destination lacks or holds with different metadata.
func (j *Job) Copy(ctx context.Context) (*Report, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}
	report := newReport("copy", j.opts)
	start := time.Now()

	ps, err := j.copyPairs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ps) > 0 {
		if err := j.execute(ctx, report, executor.ModeCopy, ps); err != nil {
			return nil, err
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}

// Plan is a staged run waiting for the batch framework.
type Plan struct {
	RunID  string
	Mode   executor.Mode
	Pairs  []pairs.FilePair
	Groups []GroupReport
	// Diff is set when the pairs came from comparing two trees.
	Diff *listing.DiffResult
}

// Plan computes the pairs mode would process, partitions them and stages
// the groups without executing them.
func (j *Job) Plan(ctx context.Context, mode executor.Mode) (*Plan, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}

	p := &Plan{RunID: manifest.NewRunID(), Mode: mode}
	var err error
	switch mode {
	case executor.ModeVerify:
		p.Diff, p.Pairs, err = j.comparePairs(ctx)
	case executor.ModeCopy:
		p.Pairs, err = j.copyPairs(ctx)
	default:
		return nil, configError("unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	groups, paths, err := j.stage(ctx, p.RunID, p.Pairs)
	if err != nil {
		return nil, err
	}
	for i, g := range groups {
		p.Groups = append(p.Groups, newGroupReport(g, paths[i], nil))
	}
	return p, nil
}

// RunGroup executes one staged group. It is what the batch framework invokes
// once per group.
func (j *Job) RunGroup(ctx context.Context, path string, mode executor.Mode) (*Report, error) {
	if err := backend.RequireSupported(path); err != nil {
		return nil, fmt.Errorf("%w: group: %v", ErrConfig, err)
	}
	if mode != executor.ModeCopy && mode != executor.ModeVerify {
		return nil, configError("unknown mode %q", mode)
	}

	report := newReport("run-group", j.opts)
	start := time.Now()
	res, n, err := j.runStaged(ctx, path, mode)
	if err != nil {
		return nil, err
	}
	report.Groups = []GroupReport{{ID: groupID(path), Path: path, Pairs: n, Failures: res.FailureCount()}}
	report.addResult(res)
	report.Duration = time.Since(start)
	return report, nil
}
