// Package status tracks per-file copy outcomes and renders progress for the
// user. Rendering is a presentation concern only: the materializer records
// outcomes here but never depends on how they are shown.
package status

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// 📊 CopyStatus represents what happened to one file.
type CopyStatus int

const (
	StatusCopied CopyStatus = iota
	StatusSkipped
	StatusFailed
	StatusRenamed
)

// String returns a string representation of CopyStatus
func (s CopyStatus) String() string {
	switch s {
	case StatusCopied:
		return "copied"
	case StatusSkipped:
		return "skipped-exists"
	case StatusFailed:
		return "failed"
	case StatusRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// 📄 FileOutcome is the per-file result surfaced to the user.
type FileOutcome struct {
	Source      string     // Absolute source path
	Destination string     // Absolute destination path
	Category    string     // Target category name
	Status      CopyStatus // What happened
	Bytes       int64      // Source size in bytes
	Err         error      // Detail when Status is StatusFailed
}

// 📈 Reporter receives per-file outcomes and run progress as they happen.
type Reporter interface {
	StartRun(ctx context.Context, run string, total int)
	Record(ctx context.Context, outcome FileOutcome)
	FinishRun(ctx context.Context, run string)
}

// 🔧 Manager implements Reporter with thread-safe accumulation. A single
// Manager spans all runs of one invocation.
type Manager struct {
	formatter FileFormatter
	verbose   bool

	mu        sync.Mutex
	outcomes  []FileOutcome
	total     int
	processed int
}

// 🏭 NewManager creates a new status manager. When verbose is false only
// failures are printed per file; progress and summary are always available.
func NewManager(formatter FileFormatter, verbose bool) *Manager {
	return &Manager{
		formatter: formatter,
		verbose:   verbose,
	}
}

func (m *Manager) StartRun(ctx context.Context, run string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = total
	m.processed = 0
	zerolog.Ctx(ctx).Info().Str("run", run).Int("files", total).Msg("materializing run")
}

func (m *Manager) Record(ctx context.Context, outcome FileOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes = append(m.outcomes, outcome)
	m.processed++

	logger := zerolog.Ctx(ctx)
	event := logger.Debug()
	if outcome.Status == StatusFailed {
		event = logger.Warn().Err(outcome.Err)
	}
	event.
		Str("source", outcome.Source).
		Str("destination", outcome.Destination).
		Str("category", outcome.Category).
		Str("status", outcome.Status.String()).
		Msg("file outcome")

	if m.verbose || outcome.Status == StatusFailed {
		logger.Info().Msg(m.formatter.FormatFileOutcome(outcome))
	}
}

func (m *Manager) FinishRun(ctx context.Context, run string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zerolog.Ctx(ctx).Info().
		Str("run", run).
		Int("processed", m.processed).
		Int("total", m.total).
		Msg(m.formatter.FormatProgress(m.processed, m.total))
}

// Outcomes returns a copy of every outcome recorded so far.
func (m *Manager) Outcomes() []FileOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FileOutcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}
