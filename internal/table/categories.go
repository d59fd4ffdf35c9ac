package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NormalizeValue renders one cell the way categories are normalized:
// absent cells become the missing marker, text is trimmed (empty after
// trimming also becomes the marker), numbers are stringified compactly.
// Applying it per cell preserves row alignment for the encoding step.
func NormalizeValue(c Cell) string {
	switch c.Kind {
	case Missing:
		return MissingMarker
	case Number:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	default:
		s := strings.TrimSpace(c.Text)
		if s == "" {
			return MissingMarker
		}
		return s
	}
}

// Categories returns the ordered, deduplicated category set of a column:
// absent cells are dropped first, the remainder is normalized, deduplicated
// and sorted lexicographically. The ordering is what makes advisor cache
// lookups repeatable across runs over the same data.
func Categories(cells []Cell) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, c := range cells {
		if c.Kind == Missing {
			continue
		}
		v := NormalizeValue(c)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		cats = append(cats, v)
	}
	sort.Strings(cats)
	return cats
}

// Candidacy decides whether a column should be offered to the encoding
// advisor. Eligible columns return their category set and an empty reason;
// everything else returns a human-readable skip reason for the processing
// log. The numeric check runs against the column as loaded, never against
// a derived copy.
func Candidacy(col *Column, limit int) ([]string, string) {
	if col.OriginallyNumeric {
		return nil, "numeric source column"
	}
	cats := Categories(col.Cells)
	if len(cats) <= 1 {
		return nil, fmt.Sprintf("too few categories (%d)", len(cats))
	}
	if len(cats) > limit {
		return nil, fmt.Sprintf("too many categories (%d > %d)", len(cats), limit)
	}
	return cats, ""
}
