package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/sloka-search/internal/config"
	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/embeddings"
	"github.com/kamusis/sloka-search/internal/embedstore"
	"github.com/kamusis/sloka-search/internal/importer"
	"github.com/kamusis/sloka-search/internal/vecindex"
	"github.com/spf13/cobra"
)

const pingTimeout = 5 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that sloka's config, dataset, embeddings provider and persisted
artifacts are in a usable state. Run this command when something seems wrong.`,
	RunE: runDoctor,
}

var doctorFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Automatically fix detected issues",
	Long: `Fix detected issues in the sloka environment.

Currently fixes:
  - Unresolved import conflicts: deletes all .conflict-* partition copies

Run 'sloka doctor' first to see what will be fixed.`,
	RunE: runDoctorFix,
}

func init() {
	doctorCmd.AddCommand(doctorFixCmd)
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorFix(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printSection("sloka doctor fix")

	fmt.Println("\n[ Unresolved conflicts ]")
	conflicts, err := importer.FindConflicts(cfg.DatasetDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if len(conflicts) == 0 {
		printOK("", "no conflict files found, nothing to fix")
		return nil
	}

	var failed int
	for _, path := range conflicts {
		if err := os.Remove(path); err != nil {
			printErr("", fmt.Sprintf("cannot delete %s: %v", filepath.Base(path), err))
			failed++
		} else {
			printOK("", fmt.Sprintf("deleted %s", filepath.Base(path)))
		}
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", failed)
	}
	fmt.Printf("  ✓  %d conflict file(s) removed.\n", len(conflicts))
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	printSection("sloka doctor")
	fmt.Println()

	fmt.Println("[ sloka.yaml ]")
	cfgPath, _ := config.ConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		printWarn("", fmt.Sprintf("%s not found, using defaults (run 'sloka init' to write one)", cfgPath))
	}
	cfg, loadErr := config.Load()
	if loadErr != nil {
		failD("cannot load config: %v", loadErr)
	} else {
		printOK("", fmt.Sprintf("data dir: %s", cfg.DataDir))
	}
	fmt.Println()

	if loadErr != nil {
		fmt.Println("===================")
		fmt.Fprintln(os.Stderr, "✗  Config could not be loaded; remaining checks skipped.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println("[ Dataset ]")
	if !checkDataset(cfg.DatasetDir) {
		allOK = false
	}
	fmt.Println()

	fmt.Println("[ Embeddings provider ]")
	prov, err := newProvider(cfg)
	if err != nil {
		failD("%v", err)
	} else if !checkProvider(ctx, cfg, prov) {
		allOK = false
	}
	fmt.Println()

	fmt.Println("[ Embedding cache ]")
	checkCache(ctx, cfg, prov)
	fmt.Println()

	fmt.Println("[ Vector index ]")
	checkIndex(cfg.IndexPath)
	fmt.Println()

	fmt.Println("[ Unresolved conflicts ]")
	conflicts, _ := importer.FindConflicts(cfg.DatasetDir)
	if len(conflicts) == 0 {
		printOK("", "no unresolved conflict files found")
	} else {
		for _, c := range conflicts {
			printWarn("", filepath.Base(c))
		}
		fmt.Printf("\n  ⚠  %d unresolved conflict file(s) found in the dataset.\n", len(conflicts))
		fmt.Println("     Reimport with 'sloka init <dir> --overwrite' or run 'sloka doctor fix'.")
		allOK = false
	}
	fmt.Println()

	fmt.Println("[ API key ]")
	apiKey, err := config.GetConfigValue("SLOKA_API_KEY")
	switch {
	case err != nil:
		failD("cannot read SLOKA_API_KEY: %v", err)
	case apiKey != "":
		printOK("", "SLOKA_API_KEY is set")
	case cfg.RequireAPIKey:
		failD("require_api_key is set but SLOKA_API_KEY is empty; protected routes will answer 500")
	default:
		printSkip("", "SLOKA_API_KEY not set, API key authentication disabled")
	}
	fmt.Println()

	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. sloka is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func checkDataset(dir string) bool {
	sources, err := corpus.DiscoverPartitions(dir)
	if err != nil {
		printErr("", fmt.Sprintf("%v (run 'sloka init <dataset-dir>')", err))
		return false
	}
	if len(sources) == 0 {
		printErr("", fmt.Sprintf("no mandala_<N>.json files in %s", dir))
		return false
	}
	var verses, bad int
	for _, src := range sources {
		recs, err := corpus.LoadPartition(src.Path, src.Number)
		if err != nil {
			printWarn(filepath.Base(src.Path), fmt.Sprintf("will be skipped: %v", err))
			bad++
			continue
		}
		verses += len(recs)
	}
	if bad == len(sources) {
		printErr("", "no readable partitions")
		return false
	}
	printOK("", fmt.Sprintf("%d partition(s), %d verse(s) in %s", len(sources)-bad, verses, dir))
	return true
}

func checkProvider(ctx context.Context, cfg *config.Config, prov embeddings.Provider) bool {
	printOK("", fmt.Sprintf("provider: %s", prov.ModelID()))
	pinger, ok := prov.(embeddings.Pinger)
	if !ok {
		printSkip("", "local provider, no backend to reach")
		return true
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pinger.Ping(pctx); err != nil {
		printErr("", fmt.Sprintf("%s backend unreachable: %v", cfg.Embeddings.Provider, err))
		return false
	}
	printOK("", fmt.Sprintf("%s backend reachable", cfg.Embeddings.Provider))
	return true
}

// checkCache only warns: a missing or stale cache is rebuilt by 'sloka index'.
func checkCache(ctx context.Context, cfg *config.Config, prov embeddings.Provider) {
	cache, err := embedstore.OpenCache(cfg.CacheBackend, cfg.CacheDir)
	if err != nil {
		printWarn("", err.Error())
		return
	}
	snap, err := cache.Load(ctx)
	switch {
	case errors.Is(err, embedstore.ErrNoCache):
		printMiss("", fmt.Sprintf("no cache at %s yet (run 'sloka index')", cache.Location()))
		return
	case err != nil:
		printWarn("", fmt.Sprintf("unreadable cache, will be rebuilt: %v", err))
		return
	}
	m := snap.Manifest
	printOK("", fmt.Sprintf("%d vector(s), %s, dim %d (%s)", len(snap.Entries), m.ModelID, m.Dim, cache.Location()))
	if prov != nil && m.ModelID != prov.ModelID() {
		printWarn("", fmt.Sprintf("cache was built with %s; it will be re-encoded with %s", m.ModelID, prov.ModelID()))
	}
}

func checkIndex(path string) {
	ix, err := vecindex.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		printMiss("", fmt.Sprintf("no index at %s yet (run 'sloka index')", path))
	case err != nil:
		printWarn("", fmt.Sprintf("index will be rebuilt: %v", err))
	default:
		printOK("", fmt.Sprintf("%d row(s), %s, dim %d, format %s", ix.Len(), ix.ModelID(), ix.Dim(), vecindex.FormatVersion))
	}
}
