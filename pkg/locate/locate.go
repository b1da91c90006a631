// Package locate resolves a user-supplied selector into the concrete run
// directories to retrieve.
package locate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Resolution failures, fatal for the whole invocation.
var (
	ErrInvalidProjectPath   = errors.Base("invalid project path")
	ErrInvalidMountRoot     = errors.Base("invalid mount root")
	ErrNoRunsFound          = errors.Base("no runs found under project")
	ErrRunNotFound          = errors.Base("run not found under mount root")
	ErrAmbiguousMatch       = errors.Base("ambiguous experiment name match")
	ErrConflictingSelectors = errors.Base("project path and experiment name are mutually exclusive")
)

// searchDepth bounds the experiment-name search below the mount root. Runs
// sit at Projects/<project>/... or Runs/<run>, never deeper than this.
const searchDepth = 4

// 🧬 RunDescriptor identifies one sequencing run to materialize.
type RunDescriptor struct {
	Name        string // run directory name, conventionally <date>_<assay>_<instrument>
	SourcePath  string // absolute path on the mount
	Destination string // absolute destination run directory
}

// 🔧 Selector is the resolved input of one invocation. Exactly one of
// ProjectDir or Experiment must be set; Experiment requires MountRoot.
type Selector struct {
	ProjectDir string // direct mode: project directory whose children are runs
	Experiment string // search mode: experiment name to look for
	MountRoot  string // search mode: root of the mounted source tree
}

// Validate reports selector conflicts before any filesystem access.
func (s Selector) Validate() error {
	if s.ProjectDir != "" && s.Experiment != "" {
		return errors.Errorf("validating selector: %w", ErrConflictingSelectors)
	}
	if s.ProjectDir == "" && s.Experiment == "" {
		return errors.Errorf("validating selector: no project path or experiment name given")
	}
	if s.Experiment != "" && s.MountRoot == "" {
		return errors.Errorf("validating selector: experiment name requires a mount root")
	}
	return nil
}

// 🔎 Locate resolves the selector into an ordered sequence of runs. Direct
// mode lists the project's immediate subdirectories; search mode walks the
// mount root to a bounded depth looking for the experiment name. Ordering
// follows the lexical directory listing of the source filesystem.
func Locate(ctx context.Context, sel Selector, destRoot string) ([]RunDescriptor, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.ProjectDir != "" {
		return locateProject(ctx, sel.ProjectDir, destRoot)
	}
	return locateExperiment(ctx, sel.Experiment, sel.MountRoot, destRoot)
}

func locateProject(ctx context.Context, projectDir, destRoot string) ([]RunDescriptor, error) {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(projectDir)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("resolving project %q: %w", projectDir, ErrInvalidProjectPath)
	}

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, errors.Errorf("listing project %q: %w", projectDir, err)
	}

	var runs []RunDescriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runs = append(runs, descriptor(projectDir, entry.Name(), destRoot))
	}
	if len(runs) == 0 {
		return nil, errors.Errorf("resolving project %q: %w", projectDir, ErrNoRunsFound)
	}

	logger.Debug().Str("project", projectDir).Int("runs", len(runs)).Msg("resolved project runs")
	return runs, nil
}

// candidate is one directory matched during the experiment-name search.
type candidate struct {
	path  string
	depth int
	exact bool
}

func locateExperiment(ctx context.Context, experiment, mountRoot, destRoot string) ([]RunDescriptor, error) {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(mountRoot)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("resolving mount root %q: %w", mountRoot, ErrInvalidMountRoot)
	}

	candidates := searchDirs(mountRoot, experiment)
	match, err := pickCandidate(candidates)
	if err != nil {
		return nil, errors.Errorf("searching for experiment %q under %q: %w", experiment, mountRoot, err)
	}

	logger.Debug().
		Str("experiment", experiment).
		Str("match", match.path).
		Bool("exact", match.exact).
		Msg("resolved experiment run")

	return []RunDescriptor{descriptor(filepath.Dir(match.path), filepath.Base(match.path), destRoot)}, nil
}

// searchDirs walks the mount root breadth-first down to searchDepth and
// collects directories whose name matches the experiment, case-insensitively.
func searchDirs(mountRoot, experiment string) []candidate {
	want := strings.ToLower(experiment)

	var found []candidate
	level := []string{mountRoot}
	for depth := 1; depth <= searchDepth && len(level) > 0; depth++ {
		var next []string
		for _, dir := range level {
			entries, err := os.ReadDir(dir)
			if err != nil {
				// Unreadable branches are skipped, not fatal: the mount may
				// hide entries it has not hydrated yet.
				continue
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				name := strings.ToLower(entry.Name())
				full := filepath.Join(dir, entry.Name())
				if name == want {
					found = append(found, candidate{path: full, depth: depth, exact: true})
				} else if strings.Contains(name, want) {
					found = append(found, candidate{path: full, depth: depth, exact: false})
				}
				next = append(next, full)
			}
		}
		level = next
	}
	return found
}

// pickCandidate applies the tie-break policy: an exact match beats any
// substring match, the deepest exact match beats shallower ones, and a lone
// substring match is accepted. Anything else is ambiguous.
func pickCandidate(candidates []candidate) (candidate, error) {
	var exact, partial []candidate
	for _, c := range candidates {
		if c.exact {
			exact = append(exact, c)
		} else {
			partial = append(partial, c)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		sort.SliceStable(exact, func(i, j int) bool { return exact[i].depth > exact[j].depth })
		if exact[0].depth == exact[1].depth {
			return candidate{}, errors.WithStack(ErrAmbiguousMatch)
		}
		return exact[0], nil
	case len(partial) == 1:
		return partial[0], nil
	case len(partial) > 1:
		return candidate{}, errors.WithStack(ErrAmbiguousMatch)
	default:
		return candidate{}, errors.WithStack(ErrRunNotFound)
	}
}

func descriptor(parent, name, destRoot string) RunDescriptor {
	return RunDescriptor{
		Name:        name,
		SourcePath:  filepath.Join(parent, name),
		Destination: filepath.Join(destRoot, name),
	}
}
