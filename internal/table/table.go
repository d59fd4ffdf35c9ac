// Package table holds the in-memory representation of a loaded dataset and
// the category, encoding, and numeric-coercion primitives the preparation
// pipeline is built from.
package table

// MissingMarker is the canonical stand-in for blank or absent values.
const MissingMarker = "nan"

// Label length limits enforced when metadata is built.
const (
	MaxValueLabelLen    = 120
	MaxVariableLabelLen = 256
)

// Kind discriminates the three states a loaded cell can be in.
type Kind uint8

const (
	Missing Kind = iota
	Text
	Number
)

// Cell is one value in a column. The zero value is a missing cell.
type Cell struct {
	Kind Kind
	Text string
	Num  float64
}

// TextCell wraps a raw string value.
func TextCell(s string) Cell { return Cell{Kind: Text, Text: s} }

// NumberCell wraps a native numeric value.
func NumberCell(f float64) Cell { return Cell{Kind: Number, Num: f} }

// Column is a named column of cells. OriginallyNumeric records the loader's
// verdict on the source data; it is read once at load time and never
// re-derived from a transformed copy.
type Column struct {
	Name              string
	Cells             []Cell
	OriginallyNumeric bool
}

// Table is a loaded dataset with ordered columns.
type Table struct {
	Source  string
	Columns []*Column
}

// Rows reports the number of data rows.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// Column returns the column with the given name, or nil when absent.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames returns the current column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
