package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamusis/sloka-search/internal/config"
	"github.com/kamusis/sloka-search/internal/importer"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dataset-dir]",
	Short: "Create ~/.sloka and import partition files",
	Long: `Initialize sloka at ~/.sloka/.

Writes sloka.yaml and a .env template when missing and creates the data
directories. When a directory is given, its mandala_<N>.json files are
validated and copied into the dataset directory:

  sloka init                       set up directories only
  sloka init ./dataset             import partitions, keep conflicts aside
  sloka init ./dataset --overwrite import partitions, replace differing ones`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var flagInitOverwrite bool

func init() {
	initCmd.Flags().BoolVar(&flagInitOverwrite, "overwrite", false, "Replace dataset partitions that differ from the imported ones")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, args []string) error {
	slokaDir, err := config.SlokaDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(slokaDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", slokaDir, err)
	}
	printOK("", fmt.Sprintf("sloka directory ready: %s", slokaDir))

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	printOK("", fmt.Sprintf(".env ready: %s", envPath))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	for _, dir := range []string{cfg.DatasetDir, cfg.CacheDir, filepath.Dir(cfg.IndexPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	printOK("", fmt.Sprintf("Data directory ready: %s", cfg.DataDir))

	if len(args) == 1 {
		src, err := config.ExpandPath(args[0])
		if err != nil {
			return err
		}
		if err := importPartitions(src, cfg.DatasetDir); err != nil {
			return err
		}
	}

	fmt.Println("\n✓  sloka init complete. Run 'sloka index' to build the search index.")
	return nil
}

// importPartitions copies validated partitions from src and prints a grouped report.
func importPartitions(src, datasetDir string) error {
	result, err := importer.ImportDir(src, datasetDir, importer.Options{Overwrite: flagInitOverwrite})
	if err != nil {
		return fmt.Errorf("import %s: %w", src, err)
	}

	printSection("Import Partitions")

	printBullet("Imported:")
	printOK("", fmt.Sprintf("%d new, %d replaced, %d identical skipped", result.Imported, result.Replaced, result.Skipped))

	if len(result.Rejected) > 0 {
		printBullet("Rejected (invalid partition):")
		for _, r := range result.Rejected {
			printErr(filepath.Base(r.Path), r.Err.Error())
		}
	}

	if len(result.Conflicts) > 0 {
		fmt.Printf("\n⚠  %d conflict(s) detected during import.\n", len(result.Conflicts))
		fmt.Printf("   The existing partitions in %s were kept.\n", datasetDir)
		fmt.Println("   Review the incoming versions, then rerun with --overwrite or run 'sloka doctor fix':")
		for _, c := range result.Conflicts {
			fmt.Printf("     - %s  ← conflicts with %s\n", filepath.Base(c.Conflict), filepath.Base(c.Original))
		}
	}
	return nil
}
