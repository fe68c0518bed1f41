package corpus

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePartition(t *testing.T, dir string, n int, body string) {
	t.Helper()
	name := filepath.Join(dir, "mandala_"+strconv.Itoa(n)+".json")
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAllPartitions_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 10, `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"ten"}]}]}`)
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	writePartition(t, dir, 2, `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"two"}]}]}`)
	writePartition(t, dir, 1, `{"mandala_number":1,"hymns":[
		{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"a"},{"stanza_number":2,"translation":"b"}]},
		{"hymn_number":2,"stanzas":[{"stanza_number":1,"sanskrit":"अग्निमीळे","deity":"Agni"}]}]}`)

	cat, err := LoadAllPartitions(dir, quietLogger())
	if err != nil {
		t.Fatalf("LoadAllPartitions: %v", err)
	}
	got := cat.IDs()
	want := []string{"1.1.1", "1.1.2", "1.2.1", "2.1.1", "10.1.1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order mismatch: got %v want %v", got, want)
	}
	if p := cat.Partitions(); len(p) != 3 || p[0] != 1 || p[2] != 10 {
		t.Fatalf("unexpected partitions: %v", p)
	}
	v, ok := cat.Find(1, 2, 1)
	if !ok {
		t.Fatalf("Find(1,2,1) not found")
	}
	if v.Metadata["deity"] != "Agni" {
		t.Fatalf("metadata not captured: %v", v.Metadata)
	}
	if v.Location() != "01.002.01" {
		t.Fatalf("unexpected location %q", v.Location())
	}
	if pos, ok := cat.Lookup("2.1.1"); !ok || pos != 3 {
		t.Fatalf("Lookup(2.1.1) = %d, %v", pos, ok)
	}
}

func TestLoadAllPartitions_SkipsMalformedPartition(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 1, `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"ok"}]}]}`)
	writePartition(t, dir, 2, `{not json`)
	writePartition(t, dir, 3, `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1}]}]}`)
	writePartition(t, dir, 4, `{"mandala_number":5,"hymns":[]}`)

	cat, err := LoadAllPartitions(dir, quietLogger())
	if err != nil {
		t.Fatalf("LoadAllPartitions: %v", err)
	}
	if cat.Len() != 1 {
		t.Fatalf("expected 1 verse, got %d", cat.Len())
	}
	if len(cat.Skipped()) != 3 {
		t.Fatalf("expected 3 skipped partitions, got %d", len(cat.Skipped()))
	}
}

func TestLoadAllPartitions_NoReadablePartitions(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 1, `[]`)

	_, err := LoadAllPartitions(dir, quietLogger())
	if err == nil {
		t.Fatalf("expected error")
	}
	var dle *DataLoadError
	if !errors.As(err, &dle) {
		t.Fatalf("expected DataLoadError, got %T", err)
	}
	if !errors.Is(err, ErrNoPartitions) {
		t.Fatalf("expected ErrNoPartitions, got %v", err)
	}

	_, err = LoadAllPartitions(filepath.Join(dir, "missing"), quietLogger())
	if !errors.Is(err, ErrNoPartitions) {
		t.Fatalf("missing dir: expected ErrNoPartitions, got %v", err)
	}
}

func TestLoadAllPartitions_DuplicateMovedToEnd(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 1, `{"hymns":[
		{"hymn_number":1,"stanzas":[
			{"stanza_number":1,"translation":"first"},
			{"stanza_number":2,"translation":"second"},
			{"stanza_number":1,"translation":"first again"},
			{"stanza_number":3,"translation":"third"}]}]}`)

	cat, err := LoadAllPartitions(dir, quietLogger())
	if err != nil {
		t.Fatalf("LoadAllPartitions: %v", err)
	}
	got := strings.Join(cat.IDs(), ",")
	if got != "1.1.2,1.1.1,1.1.3" {
		t.Fatalf("unexpected order after dedup: %s", got)
	}
	pos, _ := cat.Lookup("1.1.1")
	if cat.At(pos).TranslatedText != "first again" {
		t.Fatalf("expected later occurrence to win, got %q", cat.At(pos).TranslatedText)
	}
}

func TestCatalog_Partition(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 1, `{"hymns":[
		{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"a"},{"stanza_number":2,"translation":"b"}]},
		{"hymn_number":2,"stanzas":[{"stanza_number":1,"translation":"c"}]}]}`)

	cat, err := LoadAllPartitions(dir, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	hymns, ok := cat.Partition(1)
	if !ok || len(hymns) != 2 {
		t.Fatalf("unexpected summary: %v", hymns)
	}
	if hymns[0].Stanzas != 2 || hymns[1].Stanzas != 1 {
		t.Fatalf("unexpected stanza counts: %+v", hymns)
	}
	if _, ok := cat.Partition(9); ok {
		t.Fatalf("expected missing partition")
	}
}
