// Package cmd provides the CLI commands for vecsync.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/config"
	"github.com/lexhaven/vecsync/internal/logging"
	"github.com/lexhaven/vecsync/internal/profiling"
	"github.com/lexhaven/vecsync/pkg/version"
)

// Persistent flag state shared by all commands.
var (
	cfgPath     string
	verboseMode bool
	plainOutput bool
	noColor     bool

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()

	loggingCleanup func()
)

// NewRootCmd creates the root command for the vecsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vecsync",
		Short: "Keep a remote vector index in sync with a document corpus",
		Long: `Vecsync ingests a document corpus (local directory or S3 bucket),
chunks and embeds every document, and keeps a vector index in sync by
reprocessing only what changed since the last pass.

The registry remembers what each pass committed; the diff against it
decides what the next pass touches. Removals run before upserts, and a
changed document's new vectors land before its stale ones are deleted,
so an interrupted pass leaves extra vectors behind, never missing ones.

Run 'vecsync init' to write a sample config, then 'vecsync reindex'.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("vecsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: vecsync.yaml in the current directory)")
	cmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Plain line output instead of the TUI")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	for _, name := range []string{"profile-cpu", "profile-mem", "profile-trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRunE = teardownRun

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRegistryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupRun loads .env, initializes structured logging, and starts any
// requested profiling before a command runs. The config load here is
// best effort: it only feeds the logging section, and commands that
// need the config load it again and report failures with context.
func setupRun(_ *cobra.Command, _ []string) error {
	// Secrets (PINECONE_API_KEY, OPENAI_API_KEY, REDIS_PASSWORD) come from
	// the environment; .env is a convenience for setting them. A missing
	// file is fine, and variables already set are never overridden.
	_ = godotenv.Load()

	logCfg := logging.DefaultConfig()
	if cfg, err := config.Load(".", cfgPath); err == nil {
		logCfg.Level = cfg.Logging.Level
		logCfg.FilePath = cfg.Logging.File
	}
	if verboseMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}
	return nil
}

// teardownRun stops profiling and closes the log file, if one was opened.
func teardownRun(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
