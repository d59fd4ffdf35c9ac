package prepare

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/savloom-cli/internal/sanitize"
	"github.com/KaramelBytes/savloom-cli/internal/table"
	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

// Bundle is the export-ready view of a processed table: final identifiers,
// variable labels aligned to column order, and the per-variable value-label
// and missing tables.
type Bundle struct {
	Table        *table.Table
	VarLabels    []string                  // aligned to Table.Columns
	ValueLabels  map[string]map[int]string // identifier -> code -> label
	MissingVals  map[string][]string       // identifier -> declared missing markers
	OriginalName map[string]string         // identifier -> name the column first bore
}

// BuildBundle materializes the reconciled metadata for t. A duplicate or
// unsafe final identifier, or a column without a metadata handle, aborts
// before anything is written and leaves the session state intact.
func BuildBundle(sess *Session, t *table.Table) (*Bundle, error) {
	b := &Bundle{
		Table:        t,
		VarLabels:    make([]string, 0, len(t.Columns)),
		ValueLabels:  make(map[string]map[int]string),
		MissingVals:  make(map[string][]string),
		OriginalName: make(map[string]string, len(t.Columns)),
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("export aborted: duplicate final identifier %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if sanitize.Sanitize(col.Name) != col.Name {
			return nil, fmt.Errorf("export aborted: identifier %q is not export-safe", col.Name)
		}
		ref := sess.Ref(col.Name)
		if ref == nil {
			return nil, fmt.Errorf("export aborted: column %q has no metadata handle", col.Name)
		}
		label := ref.VarLabel
		if label == "" {
			label = col.Name
		}
		b.VarLabels = append(b.VarLabels, label)
		b.OriginalName[col.Name] = ref.Original
		if len(ref.ValueLabels) > 0 {
			b.ValueLabels[col.Name] = ref.ValueLabels
		}
		if len(ref.MissingVals) > 0 {
			b.MissingVals[col.Name] = ref.MissingVals
		}
	}
	return b, nil
}

// WriteCSV writes the data matrix with the final identifiers as the header
// row. Numeric absences become empty fields; textual columns carry their
// declared missing marker so the sidecar declarations stay truthful.
func (b *Bundle) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(b.Table.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rows := b.Table.Rows()
	record := make([]string, len(b.Table.Columns))
	for r := 0; r < rows; r++ {
		for i, col := range b.Table.Columns {
			record[i] = b.cellString(col, r)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (b *Bundle) cellString(col *table.Column, r int) string {
	if r >= len(col.Cells) {
		return b.missingString(col.Name)
	}
	c := col.Cells[r]
	switch c.Kind {
	case table.Number:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case table.Text:
		return c.Text
	default:
		return b.missingString(col.Name)
	}
}

func (b *Bundle) missingString(name string) string {
	if vals := b.MissingVals[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Metadata is the YAML sidecar schema: one entry per variable in column
// order, carrying what a downstream statistical writer needs.
type Metadata struct {
	Dataset   string         `yaml:"dataset"`
	Session   string         `yaml:"session"`
	Created   string         `yaml:"created"`
	Variables []VariableMeta `yaml:"variables"`
}

// VariableMeta describes one exported variable.
type VariableMeta struct {
	Name         string         `yaml:"name"`
	Label        string         `yaml:"label"`
	OriginalName string         `yaml:"original_name"`
	Type         string         `yaml:"type"`
	ValueLabels  map[int]string `yaml:"value_labels,omitempty"`
	MissingVals  []string       `yaml:"missing_values,omitempty"`
}

// Metadata builds the sidecar document for the bundle.
func (b *Bundle) Metadata(sess *Session) *Metadata {
	m := &Metadata{
		Dataset:   filepath.Base(b.Table.Source),
		Session:   sess.ID,
		Created:   sess.Started.Format(time.RFC3339),
		Variables: make([]VariableMeta, 0, len(b.Table.Columns)),
	}
	for i, col := range b.Table.Columns {
		kind := "text"
		if table.AllNumeric(col.Cells) {
			kind = "numeric"
		}
		m.Variables = append(m.Variables, VariableMeta{
			Name:         col.Name,
			Label:        b.VarLabels[i],
			OriginalName: b.OriginalName[col.Name],
			Type:         kind,
			ValueLabels:  b.ValueLabels[col.Name],
			MissingVals:  b.MissingVals[col.Name],
		})
	}
	return m
}

// WriteFiles writes the bundle next to base: base.csv holds the data and
// base.meta.yaml the sidecar. Both go through the atomic writer.
func (b *Bundle) WriteFiles(base string, sess *Session) error {
	if err := utils.EnsureDir(filepath.Dir(base)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var buf bytes.Buffer
	if err := b.WriteCSV(&buf); err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	if err := utils.SafeWriteFile(base+".csv", buf.Bytes()); err != nil {
		return err
	}
	yb, err := yaml.Marshal(b.Metadata(sess))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return utils.SafeWriteFile(base+".meta.yaml", yb)
}
