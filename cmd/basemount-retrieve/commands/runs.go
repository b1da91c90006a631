package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/seqcore/basemount-retrieve/pkg/locate"
)

// NewRunsCmd creates the runs command, which resolves the selector and lists
// the runs that a retrieve would process, without copying anything.
func NewRunsCmd(build OptsBuilder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs the selector resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rootOpts, err := build(cmd)
			if err != nil {
				return err
			}

			runs, err := locate.Locate(ctx, locate.Selector{
				ProjectDir: rootOpts.Config.ProjectDir,
				Experiment: rootOpts.Config.Experiment,
				MountRoot:  rootOpts.Config.MountRoot,
			}, rootOpts.Config.OutDir)
			if err != nil {
				return errors.Errorf("resolving runs: %w", err)
			}

			rows := pterm.TableData{{"Run", "Source", "Destination"}}
			for _, run := range runs {
				rows = append(rows, []string{run.Name, run.SourcePath, run.Destination})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return errors.Errorf("rendering run table: %w", err)
			}
			return nil
		},
	}

	return cmd
}
