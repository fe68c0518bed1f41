package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/sloka-search/internal/search"
)

var (
	flagStatusLoad bool
	flagStatusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured paths and search readiness",
	Long: `Show where sloka keeps its data and whether the engine can answer queries.

Without --load only the configuration is inspected. With --load the corpus,
embeddings and index are loaded and the readiness snapshot is printed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusLoad, "load", false, "Load the corpus and index before reporting")
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "Print the readiness snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	if flagStatusLoad {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		// The failure is part of the reported status.
		_ = engine.EnsureReady(ctx)
	}
	st := engine.Status()

	if flagStatusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Println("=== Paths ===")
	printPath("dataset", cfg.DatasetDir)
	printPath("cache", cfg.CacheDir)
	printPath("index", cfg.IndexPath)
	printPath("audio", cfg.AudioDir)
	printInfo("", fmt.Sprintf("embeddings: %s  cache backend: %s", cfg.Embeddings.Provider, cfg.CacheBackend))

	fmt.Println("\n=== Engine ===")
	printEngineStatus(st)
	return nil
}

func printPath(name, path string) {
	if _, err := os.Stat(path); err != nil {
		printMiss(name, path)
		return
	}
	printOK(name, path)
}

func printEngineStatus(st search.Status) {
	switch st.State {
	case search.StateReady:
		printOK("", fmt.Sprintf("ready: %d of %d verse(s) indexed with %s", st.Indexed, st.TotalVerses, st.ModelID))
		if missing := st.TotalVerses - st.Indexed; missing > 0 {
			printWarn("", fmt.Sprintf("%d verse(s) not searchable (encoding failed)", missing))
		}
	case search.StateDegraded:
		printErr("", fmt.Sprintf("degraded: %s", st.Reason))
		if st.DataLoaded {
			printInfo("", fmt.Sprintf("corpus loaded (%d verses); keyword search and the explorer still work", st.TotalVerses))
		}
	default:
		printSkip("", fmt.Sprintf("%s (run with --load to bootstrap)", st.State))
	}
}
