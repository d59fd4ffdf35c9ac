package table

import "sort"

// ApplyMapping converts every cell through the category mapping while
// keeping row alignment: each cell is normalized independently and looked
// up, and anything without a mapping entry becomes a missing cell, never
// an error. The input slice is left untouched.
func ApplyMapping(cells []Cell, mapping map[string]int) []Cell {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		code, ok := mapping[NormalizeValue(c)]
		if !ok {
			out[i] = Cell{}
			continue
		}
		out[i] = NumberCell(float64(code))
	}
	return out
}

// UnmappedCategories returns the categories that have no entry in mapping,
// in their original order. A non-empty result marks a degraded (partial)
// suggestion worth logging.
func UnmappedCategories(cats []string, mapping map[string]int) []string {
	var missing []string
	for _, c := range cats {
		if _, ok := mapping[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// InvertMapping builds the value-label table for an encoded column. When
// two categories share an integer the first category in sorted order keeps
// the label and the losers are returned for the processing log.
func InvertMapping(mapping map[string]int) (map[int]string, []string) {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	labels := make(map[int]string, len(mapping))
	var dropped []string
	for _, k := range keys {
		code := mapping[k]
		if _, dup := labels[code]; dup {
			dropped = append(dropped, k)
			continue
		}
		labels[code] = TruncateLabel(k, MaxValueLabelLen)
	}
	return labels, dropped
}

// TruncateLabel caps a display string at max runes.
func TruncateLabel(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
