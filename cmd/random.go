package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/sloka-search/internal/search"
)

var (
	flagRandomN    int
	flagRandomJSON bool
)

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Print a random selection of verses",
	Args:  cobra.NoArgs,
	RunE:  runRandom,
}

func init() {
	randomCmd.Flags().IntVarP(&flagRandomN, "n", "n", 10, "Number of verses")
	randomCmd.Flags().BoolVar(&flagRandomJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(randomCmd)
}

func runRandom(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := engine.RandomSample(ctx, flagRandomN)
	if flagRandomJSON {
		return printJSON(search.NewResponse(results, err), err)
	}
	if err != nil {
		return err
	}
	printResults(fmt.Sprintf("sloka random -n %d", flagRandomN), results)
	return nil
}
