// Package retrieve drives the whole retrieval: selector resolution, per-run
// materialization and the optional sample-rename pass, accumulating the
// aggregate report.
package retrieve

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/seqcore/basemount-retrieve/pkg/config"
	"github.com/seqcore/basemount-retrieve/pkg/layout"
	"github.com/seqcore/basemount-retrieve/pkg/locate"
	"github.com/seqcore/basemount-retrieve/pkg/materialize"
	"github.com/seqcore/basemount-retrieve/pkg/rename"
	"github.com/seqcore/basemount-retrieve/pkg/status"
	"github.com/seqcore/basemount-retrieve/pkg/store"
)

// 📊 Report is the terminal result of one invocation. Per-file failures are
// reported here without failing the invocation; RunsFailed counts runs that
// could not be materialized at all.
type Report struct {
	Runs         int
	FilesCopied  int
	FilesSkipped int
	FilesFailed  int
	FilesRenamed int
	RunsFailed   int
	BytesCopied  uint64
	FailedPaths  []string
}

// 🔧 Options wires the orchestrator's collaborators.
type Options struct {
	Config config.Config
	// Store defaults to the OS-backed store configured from Config.
	Store store.Store
	// Reporter receives per-file outcomes. Optional.
	Reporter status.Reporter
	// User renders run-level feedback. Optional.
	User *status.UserLogger
}

// 🎮 Orchestrator runs the retrieval end to end.
type Orchestrator struct {
	opts Options
	mat  *materialize.Materializer
}

// 🏭 New creates an orchestrator. Configuration errors are reported here,
// before any filesystem access.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	if err := opts.Config.Validate(ctx); err != nil {
		return nil, err
	}
	if err := (locate.Selector{
		ProjectDir: opts.Config.ProjectDir,
		Experiment: opts.Config.Experiment,
		MountRoot:  opts.Config.MountRoot,
	}).Validate(); err != nil {
		return nil, err
	}

	if opts.Store == nil {
		strictness := store.StrictnessSize
		if opts.Config.StrictHash {
			strictness = store.StrictnessHash
		}
		opts.Store = store.New(store.Options{
			Strictness: strictness,
			MaxRetries: 2,
		})
	}

	mat, err := materialize.New(materialize.Options{
		Store:          opts.Store,
		Reporter:       opts.Reporter,
		IgnorePatterns: opts.Config.EffectiveIgnorePatterns(),
		Workers:        opts.Config.Workers,
	})
	if err != nil {
		return nil, errors.Errorf("creating materializer: %w", err)
	}

	return &Orchestrator{opts: opts, mat: mat}, nil
}

// 🏃 Run resolves the selector once and materializes every resolved run,
// continuing past runs with per-file failures. Resolution errors abort with
// no partial output; everything file-grained degrades into the report.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	logger := zerolog.Ctx(ctx)

	runs, err := locate.Locate(ctx, locate.Selector{
		ProjectDir: o.opts.Config.ProjectDir,
		Experiment: o.opts.Config.Experiment,
		MountRoot:  o.opts.Config.MountRoot,
	}, o.opts.Config.OutDir)
	if err != nil {
		return Report{}, err
	}

	report := Report{Runs: len(runs)}
	for _, run := range runs {
		if o.opts.User != nil {
			o.opts.User.LogRunStart(run.Name)
		}

		outcomes, err := o.mat.Materialize(ctx, run)
		if err != nil {
			logger.Error().Err(err).Str("run", run.Name).Msg("run failed entirely")
			report.RunsFailed++
			report.FailedPaths = append(report.FailedPaths, run.SourcePath)
			continue
		}
		o.tally(&report, outcomes)

		if o.opts.Config.RenameSamples {
			if err := o.renameSamples(ctx, run, &report); err != nil {
				logger.Error().Err(err).Str("run", run.Name).Msg("rename pass failed")
			}
		}

		if o.opts.User != nil {
			failed := 0
			for _, outcome := range outcomes {
				if outcome.Status == status.StatusFailed {
					failed++
				}
			}
			o.opts.User.LogRunDone(run.Name, failed)
		}
	}

	return report, nil
}

func (o *Orchestrator) tally(report *Report, outcomes []status.FileOutcome) {
	for _, outcome := range outcomes {
		switch outcome.Status {
		case status.StatusCopied:
			report.FilesCopied++
			report.BytesCopied += uint64(outcome.Bytes)
		case status.StatusSkipped:
			report.FilesSkipped++
		case status.StatusFailed:
			report.FilesFailed++
			report.FailedPaths = append(report.FailedPaths, outcome.Source)
		}
	}
}

// renameSamples runs the read-pair simplification over the run's BaseCalls
// directory. Collisions are warnings, not failures.
func (o *Orchestrator) renameSamples(ctx context.Context, run locate.RunDescriptor, report *Report) error {
	baseCalls := filepath.Join(run.Destination, filepath.FromSlash(layout.BaseCallsDir))
	rules, err := rename.Run(ctx, o.opts.Store, baseCalls)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if rule.Err != nil {
			if o.opts.User != nil {
				o.opts.User.LogRenameCollision(rule.Original, rule.Err)
			}
			continue
		}
		report.FilesRenamed++
		if o.opts.Reporter != nil {
			o.opts.Reporter.Record(ctx, status.FileOutcome{
				Source:      filepath.Join(baseCalls, rule.Original),
				Destination: filepath.Join(baseCalls, rule.Simplified),
				Category:    layout.CategoryData.String(),
				Status:      status.StatusRenamed,
			})
		}
	}
	return nil
}

// Succeeded reports whether the invocation met its best-effort goal: every
// run was resolvable and materializable. Per-file failures do not flip it.
func (r Report) Succeeded() bool {
	return r.RunsFailed == 0
}
