package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type csvReader struct{}

func (csvReader) CanRead(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvReader) Read(path string, opt ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	dec, err := decodeReader(f, opt.Encoding)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(dec)
	r.Comma = opt.Delimiter
	if r.Comma == 0 {
		r.Comma = ','
		if strings.HasSuffix(strings.ToLower(path), ".tsv") {
			r.Comma = '\t'
		}
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}
	names = dedupeNames(names)
	cols := make([]*Column, len(names))
	for i, name := range names {
		cols[i] = &Column{Name: name}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		for i := range cols {
			var cell Cell
			// Only a genuinely empty field is absent. The literal text
			// "nan" stays a value so it can become a category.
			if i < len(rec) && rec[i] != "" {
				cell = TextCell(rec[i])
			}
			cols[i].Cells = append(cols[i].Cells, cell)
		}
	}

	// Type inference: a column where every value parses numeric is carried
	// as numeric from the start, mirroring how spreadsheet loaders type
	// their columns. The verdict is recorded once and never revisited.
	for _, c := range cols {
		if conv, ok := CoerceNumeric(c.Cells); ok {
			c.Cells = conv
			c.OriginallyNumeric = true
		}
	}
	return &Table{Source: path, Columns: cols}, nil
}

// decodeReader wraps r so the CSV layer always sees UTF-8. A leading UTF-8
// BOM is stripped in the default mode.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported input encoding: %s (use utf-8|latin-1|windows-1252)", encoding)
	}
}
