// Package config holds the resolved configuration of one retrieval
// invocation. The CLI layer fills it from flags and an optional config file;
// the core packages consume it by value and never read argv or environment.
package config

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Configuration failures, fatal before any filesystem access.
var (
	ErrMissingDestination = errors.Base("no output directory given")
)

// 📚 Config is the complete configuration for one invocation.
type Config struct {
	// ProjectDir selects direct mode: an explicit project directory whose
	// immediate subdirectories are runs.
	ProjectDir string `json:"project_dir,omitempty" yaml:"project_dir,omitempty" hcl:"project_dir,optional"`
	// Experiment selects search mode: an experiment name looked up under
	// MountRoot. Mutually exclusive with ProjectDir.
	Experiment string `json:"experiment,omitempty" yaml:"experiment,omitempty" hcl:"experiment,optional"`
	// MountRoot is the root of the externally mounted source tree, required
	// in search mode.
	MountRoot string `json:"mount_root,omitempty" yaml:"mount_root,omitempty" hcl:"mount_root,optional"`

	// OutDir is the destination root the run directories are created under.
	OutDir string `json:"out_dir" yaml:"out_dir" hcl:"out_dir"`

	// RenameSamples enables the post-copy read-pair rename pass.
	RenameSamples bool `json:"rename_samples,omitempty" yaml:"rename_samples,omitempty" hcl:"rename_samples,optional"`
	// Verbose enables per-file console output.
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty" hcl:"verbose,optional"`
	// StrictHash compares content hashes instead of sizes when deciding
	// whether an existing destination file is already copied.
	StrictHash bool `json:"strict_hash,omitempty" yaml:"strict_hash,omitempty" hcl:"strict_hash,optional"`
	// Workers bounds concurrent file copies within one run. Zero or one
	// keeps the sequential baseline.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" hcl:"workers,optional"`
	// IgnorePatterns are doublestar globs matched against run-relative
	// paths; matching entries are not retrieved. The BaseMount metadata
	// pattern is always included.
	IgnorePatterns []string `json:"ignore_patterns,omitempty" yaml:"ignore_patterns,omitempty" hcl:"ignore_patterns,optional"`
}

// DefaultIgnorePatterns hides BaseMount bookkeeping entries that are not run
// data (.id.<hash> companions and curl cache dirs).
var DefaultIgnorePatterns = []string{
	"**/.id.*",
	"**/.curlcache/**",
}

// 🔍 Validate reports configuration errors before any filesystem access.
// Selector conflicts are checked by the locator, everything else here.
func (c *Config) Validate(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if c.OutDir == "" {
		return errors.Errorf("validating config: %w", ErrMissingDestination)
	}
	if c.Workers < 0 {
		return errors.Errorf("validating config: workers must be >= 0, got %d", c.Workers)
	}

	logger.Debug().
		Str("project_dir", c.ProjectDir).
		Str("experiment", c.Experiment).
		Str("out_dir", c.OutDir).
		Int("workers", c.Workers).
		Msg("configuration validated")
	return nil
}

// EffectiveIgnorePatterns returns the configured patterns merged with the
// defaults.
func (c *Config) EffectiveIgnorePatterns() []string {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(c.IgnorePatterns))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, c.IgnorePatterns...)
	return patterns
}
