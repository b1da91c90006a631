package status

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 📢 UserLogger provides user-friendly console feedback, distinct from the
// structured zerolog output used for debugging.
type UserLogger struct {
	log zerolog.Logger
}

// 🎯 NewUserLogger creates a new user logger
func NewUserLogger(ctx context.Context) *UserLogger {
	return &UserLogger{
		log: *zerolog.Ctx(ctx),
	}
}

// 📝 LogRunStart announces that a run is being materialized
func (u *UserLogger) LogRunStart(run string) {
	pterm.Info.WithPrefix(pterm.Prefix{Text: "🧬"}).Printf("Retrieving %s\n", run)
	u.log.Info().Str("run", run).Msg("run started")
}

// 📝 LogRunDone announces a completed run
func (u *UserLogger) LogRunDone(run string, failed int) {
	if failed == 0 {
		pterm.Success.WithPrefix(pterm.Prefix{Text: "✅"}).Printf("Completed %s\n", run)
	} else {
		pterm.Warning.WithPrefix(pterm.Prefix{Text: "⚠️"}).Printf("Completed %s with %d failed files\n", run, failed)
	}
	u.log.Info().Str("run", run).Int("failed", failed).Msg("run finished")
}

// 📝 LogRenameCollision warns that a rename was skipped
func (u *UserLogger) LogRenameCollision(path string, err error) {
	pterm.Warning.WithPrefix(pterm.Prefix{Text: "⚠️"}).Printf("Rename skipped for %s\n", path)
	u.log.Warn().Err(err).Str("path", path).Msg("rename collision")
}

// 📊 LogSummary renders the terminal summary of the whole invocation
func (u *UserLogger) LogSummary(runs, copied, skipped, failed, runsFailed int, bytes uint64, failedPaths []string) {
	pterm.Info.WithPrefix(pterm.Prefix{Text: "📊"}).Printf(
		"%d run(s): %d copied (%s), %d skipped, %d failed\n",
		runs, copied, humanize.Bytes(bytes), skipped, failed)

	for _, path := range failedPaths {
		pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"}).Println(path)
	}
	if runsFailed > 0 {
		pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"}).Printf("%d run(s) failed entirely\n", runsFailed)
	}

	u.log.Info().
		Int("runs", runs).
		Int("copied", copied).
		Int("skipped", skipped).
		Int("failed", failed).
		Int("runs_failed", runsFailed).
		Uint64("bytes", bytes).
		Msg("retrieval summary")
}
