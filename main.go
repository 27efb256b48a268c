package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	dryRun           bool
	settingsPath     string
	writerPromptPath string
	templatePath     string
	debugMode        bool
	historyLimit     int
)

var rootCmd = &cobra.Command{
	Use:   "video-digest",
	Short: "Turn the latest YouTube videos into a mailed magazine digest",
	Long: `Fetches the newest long-form video of each configured channel, remixes the
transcripts into articles with Claude and mails them as one digest with an EPUB
attached. Videos are recorded only after the digest was delivered.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDigest,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the digest pipeline once",
	Args:  cobra.NoArgs,
	RunE:  runDigest,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List delivered videos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := NewConfig(buildOverrides())
		if err != nil {
			return err
		}
		tracked, err := NewTrackingStore(config.Settings.StateFile).Load()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderHistory(tracked, historyLimit))
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration files to " + defaultConfigDir,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := ensureConfigExists(defaultConfigDir)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration already present in %s\n", defaultConfigDir)
			return nil
		}
		for _, path := range created {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s\n", path)
		}
		return nil
	},
}

func runDigest(cmd *cobra.Command, args []string) error {
	config, err := NewConfig(buildOverrides())
	if err != nil {
		return err
	}

	level := config.Settings.Logging.Level
	if debugMode {
		level = "debug"
	}
	logger, err := NewLogger(LogOptions{Level: level, Format: config.Settings.Logging.Format})
	if err != nil {
		return err
	}

	processor, err := NewDigestProcessor(config, dryRun, logger)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := processor.Run(ctx)
	if report != nil {
		out := cmd.OutOrStdout()
		fmt.Fprint(out, renderStages(report.Stages))
		fmt.Fprint(out, renderDropped(report.Dropped))
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrRunInProgress):
			logger.Error("✗ another run holds the lock, try again later", "error", err)
		case errors.Is(err, ErrStateCorrupt):
			logger.Error("✗ tracking state is unreadable, fix or migrate it before the next run", "error", err)
		case errors.Is(err, context.Canceled):
			logger.Warn("run interrupted, tracking state unchanged")
		default:
			logger.Error("✗ run failed", "error", err)
		}
		return &reportedError{err: err}
	}
	return nil
}

// reportedError marks an error that was already logged through the run logger.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// logFailure logs err unless the run already reported it.
func logFailure(logger *slog.Logger, err error) {
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	logger.Error("video-digest failed", "error", err)
}

func buildOverrides() *ConfigOverrides {
	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if writerPromptPath != "" {
		overrides.WriterPromptPath = &writerPromptPath
	}
	if templatePath != "" {
		overrides.TemplatePath = &templatePath
	}
	return overrides
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write the digest to disk instead of mailing it; tracking state is not updated")
		cmd.Flags().StringVar(&writerPromptPath, "writer-prompt", "", "Path to custom writer prompt file")
		cmd.Flags().StringVar(&templatePath, "template", "", "Path to custom digest HTML template")
		cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	}
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings file (default "+getConfigPath("settings.yaml")+")")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of videos to show (0 shows all)")

	rootCmd.AddCommand(runCmd, historyCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logFailure(slog.Default(), err)
		os.Exit(1)
	}
}
