package importer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/importer"
)

const (
	partitionV1 = `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"I praise Agni"}]}]}`
	partitionV2 = `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"I glorify Agni"}]}]}`
	partition2  = `{"hymns":[{"hymn_number":1,"stanzas":[{"stanza_number":1,"translation":"Vayu, come"}]}]}`
)

func TestImportDir_BasicAndConflict(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	dataset := filepath.Join(tmp, "dataset")
	for _, d := range []string{first, second} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	writeFile(t, first, "mandala_1.json", partitionV1)
	writeFile(t, first, "mandala_2.json", partition2)
	writeFile(t, first, "readme.txt", "not a partition")

	writeFile(t, second, "mandala_1.json", partitionV2)
	writeFile(t, second, "mandala_2.json", partition2)
	writeFile(t, second, "mandala_3.json", `{"hymns":[{"hymn_number":0}]}`)

	r1, err := importer.ImportDir(first, dataset, importer.Options{})
	if err != nil {
		t.Fatalf("import first: %v", err)
	}
	if r1.Imported != 2 {
		t.Errorf("first: want 2 imported, got %d", r1.Imported)
	}
	if _, err := os.Stat(filepath.Join(dataset, "readme.txt")); !os.IsNotExist(err) {
		t.Error("readme.txt should not have been imported")
	}

	r2, err := importer.ImportDir(second, dataset, importer.Options{Tag: "second"})
	if err != nil {
		t.Fatalf("import second: %v", err)
	}
	if r2.Skipped != 1 {
		t.Errorf("second: want 1 skipped (mandala_2), got %d", r2.Skipped)
	}
	if len(r2.Conflicts) != 1 {
		t.Fatalf("second: want 1 conflict (mandala_1), got %d", len(r2.Conflicts))
	}
	if len(r2.Rejected) != 1 {
		t.Errorf("second: want 1 rejected (mandala_3), got %d", len(r2.Rejected))
	}
	if _, err := os.Stat(filepath.Join(dataset, "mandala_3.json")); !os.IsNotExist(err) {
		t.Error("invalid mandala_3.json must not be copied")
	}

	conflict := filepath.Join(dataset, "mandala_1.conflict-second.json")
	if r2.Conflicts[0].Conflict != conflict {
		t.Errorf("conflict path: got %s want %s", r2.Conflicts[0].Conflict, conflict)
	}
	data, _ := os.ReadFile(filepath.Join(dataset, "mandala_1.json"))
	if string(data) != partitionV1+"\n" {
		t.Errorf("original mandala_1.json was overwritten: %q", string(data))
	}

	found, err := importer.FindConflicts(dataset)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != conflict {
		t.Errorf("FindConflicts: %v", found)
	}

	// Conflict copies stay out of the corpus.
	cat, err := corpus.LoadAllPartitions(dataset, nil)
	if err != nil {
		t.Fatalf("LoadAllPartitions: %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("want 2 verses, got %d", cat.Len())
	}
}

func TestImportDir_Overwrite(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dataset := filepath.Join(tmp, "dataset")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dataset, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dataset, "mandala_1.json", partitionV1)
	writeFile(t, src, "mandala_1.json", partitionV2)

	r, err := importer.ImportDir(src, dataset, importer.Options{Overwrite: true})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if r.Replaced != 1 || len(r.Conflicts) != 0 {
		t.Fatalf("unexpected result: %+v", r)
	}
	data, _ := os.ReadFile(filepath.Join(dataset, "mandala_1.json"))
	if string(data) != partitionV2+"\n" {
		t.Errorf("mandala_1.json not replaced: %q", string(data))
	}
}

func TestImportDir_MissingSource(t *testing.T) {
	if _, err := importer.ImportDir(filepath.Join(t.TempDir(), "nope"), t.TempDir(), importer.Options{}); err == nil {
		t.Fatal("expected error for missing source dir")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}
