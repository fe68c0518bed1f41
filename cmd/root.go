package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDebug   bool
	flagLogJSON bool

	// logger is configured in PersistentPreRunE and shared by every command.
	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:          "sloka",
	Short:        "Semantic verse search over the Rig Veda",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `Sloka loads the verse corpus from ~/.sloka/data/dataset/, keeps an embedding
cache and a vector index next to it, and answers semantic, keyword and
explorer queries from the command line or over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelWarn
		if cmd.Annotations[annotationVerbose] != "" {
			level = slog.LevelInfo
		}
		if flagDebug {
			level = slog.LevelDebug
		}
		logger = newLogger(level, flagLogJSON)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Write logs as JSON")
}

// annotationVerbose marks long-running commands that log at Info by default.
const annotationVerbose = "sloka/verbose"

// newLogger writes diagnostics to stderr so command output on stdout stays clean.
func newLogger(level slog.Level, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
