package commands

import (
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/seqcore/basemount-retrieve/cmd/basemount-retrieve/opts"
	"github.com/seqcore/basemount-retrieve/pkg/retrieve"
)

// OptsBuilder resolves the shared options once flags are parsed
type OptsBuilder func(cmd *cobra.Command) (*opts.RootOpts, error)

// NewRetrieveCmd creates the retrieve command
func NewRetrieveCmd(build OptsBuilder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Copy a project's runs into the local sequencer layout",
		Long: `Retrieve resolves the selector (a project directory, or an experiment name
searched for under the mount root), then for each run:
1. Creates the canonical run directory skeleton
2. Classifies and copies every source file into place
3. Skips files already present at the destination
4. Optionally renames read pairs to <SampleID>_R<1|2>.fastq.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rootOpts, err := build(cmd)
			if err != nil {
				return err
			}

			orch, err := retrieve.New(ctx, retrieve.Options{
				Config:   *rootOpts.Config,
				Reporter: rootOpts.StatusMgr,
				User:     rootOpts.UserLogger,
			})
			if err != nil {
				return err
			}

			report, err := orch.Run(ctx)
			if err != nil {
				return errors.Errorf("retrieving runs: %w", err)
			}

			rootOpts.UserLogger.LogSummary(
				report.Runs,
				report.FilesCopied,
				report.FilesSkipped,
				report.FilesFailed,
				report.RunsFailed,
				report.BytesCopied,
				report.FailedPaths,
			)

			if !report.Succeeded() {
				return errors.Errorf("%d run(s) failed entirely", report.RunsFailed)
			}
			return nil
		},
	}

	return cmd
}
