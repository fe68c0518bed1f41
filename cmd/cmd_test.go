package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kamusis/sloka-search/internal/config"
	"github.com/kamusis/sloka-search/internal/embedstore"
	"github.com/kamusis/sloka-search/internal/vecindex"
)

// setupHome points HOME at a temp dir and clears every override sloka reads.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"SLOKA_CONFIG", "SLOKA_DATA_DIR", "SLOKA_LISTEN_ADDR",
		"SLOKA_EMBEDDINGS_PROVIDER", "SLOKA_EMBEDDINGS_MODEL",
		"SLOKA_EMBEDDINGS_BASE_URL", "SLOKA_EMBEDDINGS_API_KEY", "SLOKA_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return home
}

func writeSourceDataset(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"mandala_number":1,"hymns":[{"hymn_number":1,"stanzas":[
		{"stanza_number":1,"sanskrit":"अग्निमीळे पुरोहितं","translation":"I praise Agni, the household priest","deity":"Agni"},
		{"stanza_number":2,"translation":"Agni, worthy to be praised by ancient seers"},
		{"stanza_number":3,"translation":"Through Agni man obtains wealth"}]}]}`
	if err := os.WriteFile(filepath.Join(dir, "mandala_1.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitThenIndex(t *testing.T) {
	home := setupHome(t)
	src := filepath.Join(home, "incoming")
	writeSourceDataset(t, src)

	if err := runInit(initCmd, []string{src}); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DatasetDir, "mandala_1.json")); err != nil {
		t.Fatalf("partition not imported: %v", err)
	}
	envPath, _ := config.DotEnvPath()
	if _, err := os.Stat(envPath); err != nil {
		t.Fatalf(".env template not written: %v", err)
	}

	flagIndexForce = false
	if err := runIndex(indexCmd, nil); err != nil {
		t.Fatalf("runIndex: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "cache_manifest.json")); err != nil {
		t.Fatalf("cache manifest not written: %v", err)
	}
	ix, err := vecindex.Load(cfg.IndexPath)
	if err != nil {
		t.Fatalf("index not persisted: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("want 3 indexed rows, got %d", ix.Len())
	}

	// A second init with the same partition is a no-op import.
	if err := runInit(initCmd, []string{src}); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	entries, _ := os.ReadDir(cfg.DatasetDir)
	if len(entries) != 1 {
		t.Fatalf("expected only mandala_1.json in dataset, got %d entries", len(entries))
	}
}

func TestIndex_NoDatasetFails(t *testing.T) {
	setupHome(t)
	flagIndexForce = false
	err := runIndex(indexCmd, nil)
	if err == nil {
		t.Fatal("expected error without a dataset")
	}
	if !strings.Contains(err.Error(), "index build failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewEngine_UnknownCacheBackend(t *testing.T) {
	setupHome(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.CacheBackend = "redis"
	if _, err := newEngine(cfg, false); err == nil {
		t.Fatal("expected error for unsupported cache backend")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"  spaced \n  out  ", 20, "spaced out"},
		{"abcdefghij", 5, "abcd…"},
		{"अग्निमीळे", 3, "अग…"},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.n); got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestVersion_ReportsFormatsAndModel(t *testing.T) {
	setupHome(t)
	info := collectVersion()
	if info.CacheFormat != embedstore.CacheVersion || info.IndexFormat != vecindex.FormatVersion {
		t.Fatalf("format versions not reported: %+v", info)
	}
	if info.Model != "hash:384" {
		t.Fatalf("model: got %q (%s)", info.Model, info.ModelProblem)
	}

	var buf bytes.Buffer
	writeVersion(&buf, info)
	out := buf.String()
	for _, want := range []string{"cache format", "v" + strconv.Itoa(embedstore.CacheVersion), vecindex.FormatVersion, "hash:384"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}

	t.Setenv("SLOKA_EMBEDDINGS_PROVIDER", "nope")
	info = collectVersion()
	if info.Model != "" || info.ModelProblem == "" {
		t.Fatalf("unknown provider should be reported as a problem: %+v", info)
	}
	buf.Reset()
	writeVersion(&buf, info)
	if !strings.Contains(buf.String(), "unknown (") {
		t.Errorf("unexpected model line:\n%s", buf.String())
	}
}
