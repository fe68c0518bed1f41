// Package importer copies partition files into the dataset directory,
// validating each one and resolving content conflicts by hash.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/sloka-search/internal/corpus"
)

// ConflictMarker is inserted before the extension of an incoming file whose
// content differs from the one already in the dataset.
const ConflictMarker = ".conflict-"

// ConflictPair records a conflict found during import.
type ConflictPair struct {
	Original string // partition already in the dataset
	Conflict string // where the incoming version was stored
}

// Rejected is an incoming partition that failed validation.
type Rejected struct {
	Path string
	Err  error
}

// Result is returned by ImportDir.
type Result struct {
	Imported  int // new partitions copied
	Replaced  int // existing partitions overwritten (Overwrite only)
	Skipped   int // identical duplicates
	Conflicts []ConflictPair
	Rejected  []Rejected
}

// Options controls ImportDir.
type Options struct {
	// Overwrite replaces differing partitions instead of writing a conflict copy.
	Overwrite bool
	// Tag names the conflict copy, e.g. mandala_1.conflict-<tag>.json.
	Tag string
}

// ImportDir copies the mandala_<N>.json files of srcDir into dstDir.
//
// Every incoming partition is parsed first; invalid ones are rejected and never
// copied. Identical files are skipped. A differing file is either written next
// to the original as a conflict copy, which the loader ignores, or replaces it
// when Overwrite is set.
func ImportDir(srcDir, dstDir string, opts Options) (*Result, error) {
	if opts.Tag == "" {
		opts.Tag = "import"
	}
	sources, err := corpus.DiscoverPartitions(srcDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create dataset dir %s: %w", dstDir, err)
	}

	result := &Result{}
	for _, src := range sources {
		if _, err := corpus.LoadPartition(src.Path, src.Number); err != nil {
			result.Rejected = append(result.Rejected, Rejected{Path: src.Path, Err: err})
			continue
		}
		dst := filepath.Join(dstDir, filepath.Base(src.Path))

		if _, err := os.Stat(dst); err != nil {
			if !os.IsNotExist(err) {
				return result, err
			}
			if err := copyFile(src.Path, dst); err != nil {
				return result, fmt.Errorf("copy %s → %s: %w", src.Path, dst, err)
			}
			result.Imported++
			continue
		}

		same, err := sameContent(src.Path, dst)
		if err != nil {
			return result, err
		}
		switch {
		case same:
			result.Skipped++
		case opts.Overwrite:
			if err := copyFile(src.Path, dst); err != nil {
				return result, fmt.Errorf("copy %s → %s: %w", src.Path, dst, err)
			}
			result.Replaced++
		default:
			conflictDst := conflictPath(dst, opts.Tag)
			if err := copyFile(src.Path, conflictDst); err != nil {
				return result, fmt.Errorf("conflict copy %s → %s: %w", src.Path, conflictDst, err)
			}
			result.Conflicts = append(result.Conflicts, ConflictPair{Original: dst, Conflict: conflictDst})
		}
	}
	return result, nil
}

// FindConflicts lists conflict copies left in dir.
func FindConflicts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), ConflictMarker) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// conflictPath inserts the conflict marker before the extension.
//
//	mandala_1.json → mandala_1.conflict-import.json
func conflictPath(original, tag string) string {
	ext := filepath.Ext(original)
	return strings.TrimSuffix(original, ext) + ConflictMarker + tag + ext
}

func sameContent(a, b string) (bool, error) {
	ha, err := fileHash(a)
	if err != nil {
		return false, err
	}
	hb, err := fileHash(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile writes src to a temp file beside dst and renames it into place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".import-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
