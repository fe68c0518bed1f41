package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/sloka-search/internal/embedstore"
	"github.com/kamusis/sloka-search/internal/vecindex"
)

// Set with -ldflags "-X github.com/kamusis/sloka-search/cmd.version=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var flagVersionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show sloka build and on-disk format versions",
	Long: `Show the sloka build, the cache and index formats it reads and writes,
and the embedding model the current config selects. A cache or index written
under another format or model is rebuilt on the next 'sloka index'.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&flagVersionJSON, "json", false, "Print version information as JSON")
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit,omitempty"`
	BuildDate    string `json:"build_date,omitempty"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
	CacheFormat  int    `json:"cache_format"`
	IndexFormat  string `json:"index_format"`
	Model        string `json:"model,omitempty"`
	ModelProblem string `json:"model_error,omitempty"`
}

func collectVersion() versionInfo {
	info := versionInfo{
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		CacheFormat: embedstore.CacheVersion,
		IndexFormat: vecindex.FormatVersion,
	}
	// go install builds carry VCS stamps instead of ldflags.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}

	if cfg, err := loadConfig(); err != nil {
		info.ModelProblem = err.Error()
	} else if prov, err := newProvider(cfg); err != nil {
		info.ModelProblem = err.Error()
	} else {
		info.Model = prov.ModelID()
	}
	return info
}

func runVersion(_ *cobra.Command, _ []string) error {
	info := collectVersion()
	if flagVersionJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	writeVersion(os.Stdout, info)
	return nil
}

func writeVersion(w io.Writer, info versionInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "sloka\t%s\n", info.Version)
	fmt.Fprintf(tw, "commit\t%s\n", orNA(info.Commit))
	fmt.Fprintf(tw, "built\t%s\n", orNA(info.BuildDate))
	fmt.Fprintf(tw, "go\t%s %s\n", info.GoVersion, info.Platform)
	fmt.Fprintf(tw, "cache format\tv%d\n", info.CacheFormat)
	fmt.Fprintf(tw, "index format\t%s\n", info.IndexFormat)
	if info.Model != "" {
		fmt.Fprintf(tw, "model\t%s\n", info.Model)
	} else {
		fmt.Fprintf(tw, "model\tunknown (%s)\n", info.ModelProblem)
	}
	tw.Flush()
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
