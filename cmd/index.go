package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagIndexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the embedding cache and vector index",
	Long: `Load the corpus, encode verses whose text changed since the last run, and
rewrite the vector index when it no longer matches the embeddings.

--force discards cached vectors and the persisted index and re-encodes every
verse.`,
	Args:        cobra.NoArgs,
	RunE:        runIndex,
	Annotations: map[string]string{annotationVerbose: "true"},
}

func init() {
	indexCmd.Flags().BoolVar(&flagIndexForce, "force", false, "Re-encode every verse and rebuild the index")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagIndexForce {
		if err := os.Remove(cfg.IndexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot remove index %s: %w", cfg.IndexPath, err)
		}
	}
	engine, err := newEngine(cfg, flagIndexForce)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	printSection("sloka index")
	printInfo("", fmt.Sprintf("dataset: %s", cfg.DatasetDir))
	if err := engine.EnsureReady(ctx); err != nil {
		st := engine.Status()
		if st.DataLoaded {
			printOK("", fmt.Sprintf("%d verse(s) loaded", st.TotalVerses))
		}
		return fmt.Errorf("index build failed: %w", err)
	}

	st := engine.Status()
	printOK("", fmt.Sprintf("%d verse(s) loaded", st.TotalVerses))
	printOK("", fmt.Sprintf("embeddings ready (%s), cache: %s", st.ModelID, cfg.CacheDir))
	if missing := st.TotalVerses - st.Indexed; missing > 0 {
		printWarn("", fmt.Sprintf("%d verse(s) could not be encoded and are not searchable", missing))
	}
	printOK("", fmt.Sprintf("index ready: %d row(s) → %s", st.Indexed, cfg.IndexPath))
	return nil
}
