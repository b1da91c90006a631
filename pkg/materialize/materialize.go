// Package materialize rebuilds one source run directory into the canonical
// benchtop layout under the destination root.
package materialize

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/seqcore/basemount-retrieve/pkg/layout"
	"github.com/seqcore/basemount-retrieve/pkg/locate"
	"github.com/seqcore/basemount-retrieve/pkg/status"
	"github.com/seqcore/basemount-retrieve/pkg/store"
)

// 🔧 Options configures a Materializer.
type Options struct {
	// Store is the destination abstraction. Required.
	Store store.Store
	// Reporter receives progress and per-file outcomes. Optional.
	Reporter status.Reporter
	// IgnorePatterns are doublestar globs matched against run-relative
	// paths; matching entries are not retrieved.
	IgnorePatterns []string
	// Workers bounds concurrent file copies within one run. Values below
	// two keep the sequential baseline.
	Workers int
}

// 🏗️ Materializer copies one run at a time into the canonical layout.
type Materializer struct {
	opts Options
}

// 🏭 New creates a materializer.
func New(opts Options) (*Materializer, error) {
	if opts.Store == nil {
		return nil, errors.Errorf("store is required")
	}
	for _, pattern := range opts.IgnorePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	return &Materializer{opts: opts}, nil
}

// 🧱 mountEntry is a snapshot of one source file taken at traversal time.
type mountEntry struct {
	absPath string // absolute path on the mount
	relPath string // slash-separated path relative to the run root
}

// metadataClaims arbitrates remapped metadata destinations within one run:
// the first claimant wins, later duplicates skip. Safe under the worker pool.
type metadataClaims struct {
	mu    sync.Mutex
	taken map[string]string // destination rel path -> winning source rel path
}

func newMetadataClaims() *metadataClaims {
	return &metadataClaims{taken: map[string]string{}}
}

// claim records rel as the owner of destRel. Returns false when another
// source already owns it.
func (c *metadataClaims) claim(destRel, rel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.taken[destRel]; ok {
		return owner == rel
	}
	c.taken[destRel] = rel
	return true
}

// 🏃 Materialize builds the destination skeleton for the run and copies
// every classified source file into place. Per-file failures are recorded
// and skipped over; only a failure to build the skeleton or to enumerate the
// run root at all is returned as an error (a fully failed run).
func (m *Materializer) Materialize(ctx context.Context, run locate.RunDescriptor) ([]status.FileOutcome, error) {
	logger := zerolog.Ctx(ctx)

	if err := m.buildSkeleton(ctx, run.Destination); err != nil {
		return nil, err
	}

	entries, enumFailures, err := m.enumerate(run)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("run", run.Name).
		Int("files", len(entries)).
		Msg("enumerated source run")

	if m.opts.Reporter != nil {
		m.opts.Reporter.StartRun(ctx, run.Name, len(entries))
		defer m.opts.Reporter.FinishRun(ctx, run.Name)
	}

	outcomes := make([]status.FileOutcome, 0, len(entries)+len(enumFailures))
	for _, failure := range enumFailures {
		outcomes = append(outcomes, m.record(ctx, failure))
	}

	claims := newMetadataClaims()

	if m.opts.Workers > 1 {
		parallel, err := m.copyParallel(ctx, run, entries, claims)
		if err != nil {
			return nil, err
		}
		return append(outcomes, parallel...), nil
	}

	for _, entry := range entries {
		outcomes = append(outcomes, m.record(ctx, m.copyEntry(ctx, run, entry, claims)))
	}
	return outcomes, nil
}

// buildSkeleton creates the run directory and every canonical subdirectory.
// Directory creation happens-before any file copy.
func (m *Materializer) buildSkeleton(ctx context.Context, dest string) error {
	if err := m.opts.Store.EnsureDir(ctx, dest); err != nil {
		return errors.Errorf("creating run directory: %w", err)
	}
	for _, dir := range layout.SkeletonDirs() {
		if err := m.opts.Store.EnsureDir(ctx, filepath.Join(dest, filepath.FromSlash(dir))); err != nil {
			return errors.Errorf("creating skeleton directory %q: %w", dir, err)
		}
	}
	return nil
}

// enumerate snapshots every file under the source run root. Unreadable
// subtrees become failed outcomes rather than aborting the run; only an
// unreadable run root is fatal.
func (m *Materializer) enumerate(run locate.RunDescriptor) ([]mountEntry, []status.FileOutcome, error) {
	var entries []mountEntry
	var failures []status.FileOutcome

	walkErr := filepath.WalkDir(run.SourcePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == run.SourcePath {
				return errors.Errorf("enumerating run %q: %w", run.SourcePath, err)
			}
			failures = append(failures, status.FileOutcome{
				Source: p,
				Status: status.StatusFailed,
				Err:    err,
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(run.SourcePath, p)
		if err != nil {
			return errors.Errorf("computing relative path for %q: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if m.ignored(rel) {
			return nil
		}
		entries = append(entries, mountEntry{absPath: p, relPath: rel})
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return entries, failures, nil
}

// ignored matches a run-relative path against the ignore patterns.
func (m *Materializer) ignored(rel string) bool {
	for _, pattern := range m.opts.IgnorePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// copyEntry classifies one source file, computes its destination and copies
// it through the store. Never returns an error: failures become outcomes.
func (m *Materializer) copyEntry(ctx context.Context, run locate.RunDescriptor, entry mountEntry, claims *metadataClaims) status.FileOutcome {
	category := layout.Classify(entry.relPath)

	destRel, remapped := metadataDestination(entry.relPath)
	if !remapped {
		destRel = layout.DestinationPath(entry.relPath, category)
	}
	destAbs := filepath.Join(run.Destination, filepath.FromSlash(destRel))

	outcome := status.FileOutcome{
		Source:      entry.absPath,
		Destination: destAbs,
		Category:    category.String(),
	}

	// Several source locations can remap to the same metadata file; the first
	// one copied this run wins, the rest skip.
	if remapped && !claims.claim(destRel, entry.relPath) {
		outcome.Status = status.StatusSkipped
		return outcome
	}

	// Nested destinations (BaseCalls subtrees, unclassified paths) may need
	// parents beyond the skeleton.
	if err := m.opts.Store.EnsureDir(ctx, filepath.Dir(destAbs)); err != nil {
		outcome.Status = status.StatusFailed
		outcome.Err = err
		return outcome
	}

	result, size, err := m.opts.Store.CopyFile(ctx, entry.absPath, destAbs)
	if err != nil {
		outcome.Status = status.StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Bytes = size
	if result == store.ResultSkipped {
		outcome.Status = status.StatusSkipped
	} else {
		outcome.Status = status.StatusCopied
	}
	return outcome
}

// copyParallel copies entries through a bounded worker pool. Outcome
// accumulation is mutex-guarded and total; one file's failure never cancels
// its siblings.
func (m *Materializer) copyParallel(ctx context.Context, run locate.RunDescriptor, entries []mountEntry, claims *metadataClaims) ([]status.FileOutcome, error) {
	var mu sync.Mutex
	outcomes := make([]status.FileOutcome, 0, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			outcome := m.record(gctx, m.copyEntry(gctx, run, entry, claims))
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Errorf("copying run files: %w", err)
	}
	return outcomes, nil
}

// record forwards an outcome to the reporter, if any.
func (m *Materializer) record(ctx context.Context, outcome status.FileOutcome) status.FileOutcome {
	if m.opts.Reporter != nil {
		m.opts.Reporter.Record(ctx, outcome)
	}
	return outcome
}

// metadataDestination remaps well-known BaseSpace metadata files to their
// benchtop locations at the run root. The mount exposes the sample sheet as
// Properties/Input.sample-sheet and buries the run XMLs under
// Properties/Input.Runs or Logs.
func metadataDestination(rel string) (string, bool) {
	base := path.Base(rel)
	first, _, _ := strings.Cut(rel, "/")
	switch base {
	case "Input.sample-sheet":
		if first == "Properties" {
			return "SampleSheet.csv", true
		}
	case "RunInfo.xml", "RunParameters.xml":
		if first == "Properties" || first == "Logs" {
			return base, true
		}
	}
	return "", false
}
