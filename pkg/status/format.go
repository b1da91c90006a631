package status

import (
	"fmt"

	"github.com/fatih/color"
)

// FileFormatter defines how file outcomes and progress are formatted for the
// console.
type FileFormatter interface {
	// FormatFileOutcome formats a single file outcome line
	FormatFileOutcome(outcome FileOutcome) string

	// FormatProgress formats a progress message
	FormatProgress(current, total int) string
}

// DefaultFileFormatter provides the default console formatting
type DefaultFileFormatter struct{}

// NewDefaultFileFormatter creates a new DefaultFileFormatter
func NewDefaultFileFormatter() *DefaultFileFormatter {
	return &DefaultFileFormatter{}
}

// FormatFileOutcome formats a file outcome with a colored status symbol
func (f *DefaultFileFormatter) FormatFileOutcome(outcome FileOutcome) string {
	var symbol string
	switch outcome.Status {
	case StatusCopied:
		symbol = color.New(color.FgGreen).Sprint("✓")
	case StatusSkipped:
		symbol = color.New(color.FgYellow).Sprint("-")
	case StatusRenamed:
		symbol = color.New(color.FgBlue).Sprint("⟳")
	case StatusFailed:
		symbol = color.New(color.FgRed).Sprint("✗")
	}

	line := fmt.Sprintf("%s %-14s %-16s %s",
		symbol,
		outcome.Status.String(),
		color.New(color.FgCyan).Sprint(outcome.Category),
		outcome.Destination)
	if outcome.Err != nil {
		line += color.New(color.FgRed).Sprintf(" (%v)", outcome.Err)
	}
	return line
}

// FormatProgress formats a progress message with percentage
func (f *DefaultFileFormatter) FormatProgress(current, total int) string {
	var percentage float64
	if total == 0 {
		percentage = 100
	} else {
		percentage = float64(current) / float64(total) * 100
	}

	if current >= total {
		return fmt.Sprintf("✅ Progress: %d/%d (%.0f%%)", current, total, percentage)
	}
	return fmt.Sprintf("⏳ Progress: %d/%d (%.0f%%)", current, total, percentage)
}
