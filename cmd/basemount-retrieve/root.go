package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/seqcore/basemount-retrieve/cmd/basemount-retrieve/commands"
	"github.com/seqcore/basemount-retrieve/cmd/basemount-retrieve/opts"
	"github.com/seqcore/basemount-retrieve/pkg/config"
	"github.com/seqcore/basemount-retrieve/pkg/status"
)

var (
	// Flags
	flagConfigFile string
	flagLogFile    string
	flagDebug      bool

	flagProjectDir    string
	flagExperiment    string
	flagMountRoot     string
	flagOutDir        string
	flagRenameSamples bool
	flagVerbose       bool
	flagStrictHash    bool
	flagWorkers       int
	flagIgnore        []string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "basemount-retrieve",
		Short: "Retrieve sequencing runs from a BaseMount project into the local sequencer layout",
		Long: `basemount-retrieve walks a read-only BaseMount project (or a single named
experiment), classifies every file into the canonical run layout produced by a
benchtop sequencer and copies it into place. Retrieval is resumable: files
already present at the destination are skipped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogging(cmd.OutOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(logger.WithContext(cmd.Context()))
			return nil
		},
	}

	addRootFlags(root)

	root.AddCommand(commands.NewRetrieveCmd(newRootOpts))
	root.AddCommand(commands.NewRunsCmd(newRootOpts))
	root.AddCommand(newVersionCmd())

	return root
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "config file path (yaml, json or hcl)")
	cmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write structured logs to this rotating file")
	cmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")

	cmd.PersistentFlags().StringVarP(&flagProjectDir, "project-dir", "p", "", "path to a BaseMount project directory (direct mode)")
	cmd.PersistentFlags().StringVarP(&flagExperiment, "experiment", "e", "", "experiment name to search for under the mount root (search mode)")
	cmd.PersistentFlags().StringVarP(&flagMountRoot, "mount-root", "m", "", "root of the BaseMount tree, required with --experiment")
	cmd.PersistentFlags().StringVarP(&flagOutDir, "out-dir", "o", "", "destination directory for the retrieved runs")
	cmd.PersistentFlags().BoolVarP(&flagRenameSamples, "rename-samples", "r", false, "rename read pairs to <SampleID>_R<1|2>.fastq.gz after copying")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "print every file outcome")
	cmd.PersistentFlags().BoolVar(&flagStrictHash, "strict-hash", false, "compare content hashes instead of sizes when resuming")
	cmd.PersistentFlags().IntVarP(&flagWorkers, "workers", "w", 1, "concurrent file copies per run")
	cmd.PersistentFlags().StringArrayVar(&flagIgnore, "ignore", nil, "extra doublestar patterns to skip (repeatable)")
}

// newRootOpts resolves the effective configuration (config file merged with
// flag overrides) and the shared collaborators.
func newRootOpts(cmd *cobra.Command) (*opts.RootOpts, error) {
	ctx := cmd.Context()

	cfg := &config.Config{}
	if flagConfigFile != "" {
		loaded, err := config.LoadFile(flagConfigFile)
		if err != nil {
			return nil, errors.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	// Flags override file values
	if flagProjectDir != "" {
		cfg.ProjectDir = flagProjectDir
	}
	if flagExperiment != "" {
		cfg.Experiment = flagExperiment
	}
	if flagMountRoot != "" {
		cfg.MountRoot = flagMountRoot
	}
	if flagOutDir != "" {
		cfg.OutDir = flagOutDir
	}
	if cmd.Flags().Changed("rename-samples") {
		cfg.RenameSamples = flagRenameSamples
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if cmd.Flags().Changed("strict-hash") {
		cfg.StrictHash = flagStrictHash
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = flagWorkers
	}
	cfg.IgnorePatterns = append(cfg.IgnorePatterns, flagIgnore...)

	if cfg.OutDir != "" {
		abs, err := filepath.Abs(cfg.OutDir)
		if err != nil {
			return nil, errors.Errorf("resolving output directory: %w", err)
		}
		cfg.OutDir = abs
	}

	return &opts.RootOpts{
		Config:     cfg,
		StatusMgr:  status.NewManager(status.NewDefaultFileFormatter(), cfg.Verbose),
		UserLogger: status.NewUserLogger(ctx),
	}, nil
}

// setupLogging configures zerolog: console output on stderr, plus a rotating
// JSON log file when --log-file is given.
func setupLogging(console io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}

	var sink io.Writer = zerolog.ConsoleWriter{Out: console}
	if flagLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(flagLogFile), 0o755); err != nil {
			return zerolog.Logger{}, errors.Errorf("creating log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   flagLogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		sink = zerolog.MultiLevelWriter(sink, rotating)
	}

	logger := zerolog.New(sink).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger, nil
}
