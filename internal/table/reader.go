package table

import (
	"fmt"
	"path/filepath"
)

// Reader defines a dataset loader for one spreadsheet format.
type Reader interface {
	CanRead(filename string) bool
	Read(path string, opt ReadOptions) (*Table, error)
}

// ReadOptions carries per-format knobs; the zero value auto-detects.
type ReadOptions struct {
	Delimiter  rune   // CSV field separator; 0 picks by extension
	Encoding   string // "", "utf-8", "latin-1", "windows-1252"
	Sheet      string // XLSX sheet name
	SheetIndex int    // XLSX 1-based sheet index when Sheet is empty
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// Load selects a reader based on filename and loads the dataset.
func Load(path string, opt ReadOptions) (*Table, error) {
	for _, r := range registry {
		if r.CanRead(path) {
			return r.Read(path, opt)
		}
	}
	return nil, fmt.Errorf("unsupported file type: %s (expected .csv, .tsv, or .xlsx)", filepath.Ext(path))
}

// dedupeNames disambiguates repeated header names the way spreadsheet
// loaders do, appending .1, .2, ... to later occurrences.
func dedupeNames(names []string) []string {
	counts := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		n := counts[name]
		counts[name] = n + 1
		if n == 0 {
			out[i] = name
			continue
		}
		cand := fmt.Sprintf("%s.%d", name, n)
		for counts[cand] > 0 {
			n++
			cand = fmt.Sprintf("%s.%d", name, n)
		}
		counts[cand] = 1
		out[i] = cand
	}
	return out
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}
