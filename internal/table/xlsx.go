package table

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// xlsxReader loads a single worksheet from an .xlsx workbook without
// external dependencies: the container is a zip of XML parts and only the
// workbook index, the relationships, the shared-string pool, and one sheet
// part are needed.
type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

func (xlsxReader) Read(path string, opt ReadOptions) (*Table, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer zr.Close()

	wbData, err := readZipFile(&zr.Reader, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	sheets, err := parseWorkbook(wbData)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %s", path)
	}

	relData, err := readZipFile(&zr.Reader, "xl/_rels/workbook.xml.rels")
	if err != nil {
		return nil, err
	}
	rels, err := parseRelationships(relData)
	if err != nil {
		return nil, err
	}

	target, err := resolveSheet(sheets, rels, opt.Sheet, opt.SheetIndex)
	if err != nil {
		return nil, err
	}

	var shared []string
	if data, err := readZipFile(&zr.Reader, "xl/sharedStrings.xml"); err == nil {
		if shared, err = parseSharedStrings(data); err != nil {
			return nil, err
		}
	}

	sheetData, err := readZipFile(&zr.Reader, target)
	if err != nil {
		return nil, err
	}
	rows, err := readSheetRows(sheetData, shared)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet is empty: %s", path)
	}

	header := rows[0]
	width := len(header)
	for _, r := range rows[1:] {
		if len(r) > width {
			width = len(r)
		}
	}

	names := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(header) {
			names[i] = headerString(header[i])
		}
	}
	names = dedupeNames(names)
	cols := make([]*Column, width)
	for i, name := range names {
		cols[i] = &Column{Name: name}
	}
	for _, row := range rows[1:] {
		for i := 0; i < width; i++ {
			var cell Cell
			if i < len(row) {
				cell = row[i]
			}
			cols[i].Cells = append(cols[i].Cells, cell)
		}
	}
	// Workbook cells carry their own types, so numericness comes straight
	// from the cell kinds: a digit string stored as text stays textual here
	// and is only reconsidered by the final whole-column coercion.
	for _, c := range cols {
		c.OriginallyNumeric = AllNumeric(c.Cells)
	}
	return &Table{Source: path, Columns: cols}, nil
}

type wbSheet struct {
	Name string
	RID  string
}

func parseWorkbook(data []byte) ([]wbSheet, error) {
	var wb struct {
		Sheets struct {
			Sheet []struct {
				Name string `xml:"name,attr"`
				RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
			} `xml:"sheet"`
		} `xml:"sheets"`
	}
	if err := xml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}
	out := make([]wbSheet, 0, len(wb.Sheets.Sheet))
	for _, s := range wb.Sheets.Sheet {
		out = append(out, wbSheet{Name: s.Name, RID: s.RID})
	}
	return out, nil
}

func parseRelationships(data []byte) (map[string]string, error) {
	var rels struct {
		Rels []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("parse relationships: %w", err)
	}
	out := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		out[r.ID] = r.Target
	}
	return out, nil
}

func parseSharedStrings(data []byte) ([]string, error) {
	var sst struct {
		Items []struct {
			T    *string `xml:"t"`
			Runs []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil, fmt.Errorf("parse shared strings: %w", err)
	}
	out := make([]string, len(sst.Items))
	for i, it := range sst.Items {
		if it.T != nil {
			out[i] = *it.T
			continue
		}
		var sb strings.Builder
		for _, r := range it.Runs {
			sb.WriteString(r.T)
		}
		out[i] = sb.String()
	}
	return out, nil
}

func resolveSheet(sheets []wbSheet, rels map[string]string, name string, index int) (string, error) {
	pick := -1
	if name != "" {
		for i, s := range sheets {
			if s.Name == name {
				pick = i
				break
			}
		}
		if pick < 0 {
			avail := make([]string, len(sheets))
			for i, s := range sheets {
				avail[i] = s.Name
			}
			return "", fmt.Errorf("sheet %q not found (available: %s)", name, strings.Join(avail, ", "))
		}
	} else {
		if index <= 0 {
			index = 1
		}
		if index > len(sheets) {
			return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", index, len(sheets))
		}
		pick = index - 1
	}
	target, ok := rels[sheets[pick].RID]
	if !ok {
		return "", fmt.Errorf("no relationship for sheet %q", sheets[pick].Name)
	}
	return normalizeRelPath(target), nil
}

// normalizeRelPath turns a relationship target into a zip entry path.
// Targets come either relative to xl/ or absolute from the package root.
func normalizeRelPath(target string) string {
	t := strings.TrimPrefix(target, "/")
	if !strings.HasPrefix(t, "xl/") {
		t = "xl/" + t
	}
	return t
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("missing workbook part: %s", name)
}

func readSheetRows(data []byte, shared []string) ([][]Cell, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var rows [][]Cell
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sheet: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		row, err := readRow(d, shared)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readRow(d *xml.Decoder, shared []string) ([]Cell, error) {
	var cells []Cell
	next := 0 // column index used when a cell carries no reference
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("parse row: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "c" {
				if err := d.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			idx, cell, err := readCell(d, t, shared, next)
			if err != nil {
				return nil, err
			}
			for len(cells) <= idx {
				cells = append(cells, Cell{})
			}
			cells[idx] = cell
			next = idx + 1
		case xml.EndElement:
			if t.Name.Local == "row" {
				return cells, nil
			}
		}
	}
}

func readCell(d *xml.Decoder, c xml.StartElement, shared []string, fallbackIdx int) (int, Cell, error) {
	idx := fallbackIdx
	typ := ""
	for _, a := range c.Attr {
		switch a.Name.Local {
		case "r":
			if i := colIndexFromRef(a.Value); i >= 0 {
				idx = i
			}
		case "t":
			typ = a.Value
		}
	}
	var body struct {
		V  string `xml:"v"`
		IS struct {
			T    string `xml:"t"`
			Runs []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"is"`
	}
	if err := d.DecodeElement(&body, &c); err != nil {
		return 0, Cell{}, fmt.Errorf("parse cell: %w", err)
	}
	inline := body.IS.T
	if inline == "" {
		var sb strings.Builder
		for _, r := range body.IS.Runs {
			sb.WriteString(r.T)
		}
		inline = sb.String()
	}
	return idx, cellFromRaw(typ, body.V, inline, shared), nil
}

func cellFromRaw(typ, v, inline string, shared []string) Cell {
	switch typ {
	case "s":
		i := atoiSafe(v)
		if i < 0 || i >= len(shared) {
			return Cell{}
		}
		return textOrMissing(shared[i])
	case "str":
		return textOrMissing(v)
	case "inlineStr":
		return textOrMissing(inline)
	case "b":
		if strings.TrimSpace(v) == "1" {
			return TextCell("True")
		}
		return TextCell("False")
	case "e":
		return Cell{}
	default:
		s := strings.TrimSpace(v)
		if s == "" {
			return Cell{}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return textOrMissing(v)
		}
		return NumberCell(f)
	}
}

func textOrMissing(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return TextCell(s)
}

func headerString(c Cell) string {
	switch c.Kind {
	case Text:
		return strings.TrimSpace(c.Text)
	case Number:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	default:
		return ""
	}
}

func colIndexFromRef(ref string) int {
	n := 0
	ok := false
	for i := 0; i < len(ref); i++ {
		ch := ref[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch < 'A' || ch > 'Z' {
			break
		}
		n = n*26 + int(ch-'A'+1)
		ok = true
	}
	if !ok {
		return -1
	}
	return n - 1
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}
