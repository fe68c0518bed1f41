package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/kamusis/sloka-search/internal/search"
)

var (
	flagSearchK       int
	flagSearchKeyword bool
	flagSearchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Find verses by meaning (or by keyword with --keyword)",
	Long: `Search the corpus for verses similar in meaning to the query.

The first run builds the embedding cache and the vector index; later runs
reuse them. --keyword switches to a case-insensitive match requiring every
query word.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&flagSearchK, "k", "k", 0, "Number of results (default: default_top_k from config)")
	searchCmd.Flags().BoolVar(&flagSearchKeyword, "keyword", false, "Match query words instead of meaning")
	searchCmd.Flags().BoolVar(&flagSearchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, false)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	k := flagSearchK
	if !cmd.Flags().Changed("k") {
		k = cfg.DefaultTopK
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var results []search.Result
	if flagSearchKeyword {
		results, err = engine.Keyword(ctx, query, k)
	} else {
		results, err = engine.Search(ctx, query, k)
	}

	if flagSearchJSON {
		return printJSON(search.NewResponse(results, err), err)
	}
	if err != nil {
		return err
	}
	printResults(fmt.Sprintf("sloka search %q", query), results)
	return nil
}

// printJSON writes resp to stdout and still returns err so the exit code is set.
func printJSON(resp search.Response, err error) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}

func printResults(title string, results []search.Result) {
	fmt.Printf("\n%s\n\n", title)
	fmt.Printf("Results (%d found):\n", len(results))
	if len(results) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, r := range results {
		score := ""
		if r.Why == "semantic" {
			score = fmt.Sprintf("[%.3f]", r.Score)
		}
		v := r.Verse
		fmt.Fprintf(w, "  %d.\t%s\t%s\t%s\n", i+1, score, v.Location(), v.Metadata["deity"])
		if v.TranslatedText != "" {
			fmt.Fprintf(w, "  - %s\n", truncate(v.TranslatedText, 160))
		} else {
			fmt.Fprintf(w, "  - %s\n", truncate(v.SourceText, 160))
		}
	}
	_ = w.Flush()
}

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
