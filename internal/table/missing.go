package table

import (
	"math"
	"strconv"
	"strings"
)

// AllNumeric reports whether every cell is already numeric or missing, the
// condition under which a column relies on native missing semantics.
func AllNumeric(cells []Cell) bool {
	for _, c := range cells {
		if c.Kind == Text {
			return false
		}
	}
	return true
}

// CoerceNumeric attempts the whole-column conversion used both by the CSV
// loader's type inference and by the final missing-value classifier. Every
// textual cell must parse as a number for the conversion to hold; the
// missing marker and whitespace-only text count as absent rather than
// failing. ok=false means the column stays textual and cells is nil.
func CoerceNumeric(cells []Cell) ([]Cell, bool) {
	out := make([]Cell, len(cells))
	for i, c := range cells {
		switch c.Kind {
		case Missing, Number:
			out[i] = c
		default:
			conv, ok := coerceText(c.Text)
			if !ok {
				return nil, false
			}
			out[i] = conv
		}
	}
	return out, true
}

func coerceText(s string) (Cell, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == MissingMarker {
		return Cell{}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Cell{}, false
	}
	if math.IsNaN(f) {
		// "NaN" spellings parse but carry no value.
		return Cell{}, true
	}
	return NumberCell(f), true
}
