package table

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSharedStrings = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="6" uniqueCount="6"><si><t>Satisfaction</t></si><si><t>Age</t></si><si><t>Very satisfied</t></si><si><r><t>Dis</t></r><r><t>satisfied</t></r></si><si><t>01</t></si><si><t>02</t></si></sst>`

const testSheetData = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="inlineStr"><is><t>Code</t></is></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>34</v></c><c r="C2" t="s"><v>4</v></c></row>
<row r="3"><c r="A3" t="s"><v>3</v></c><c r="C3" t="s"><v>5</v></c></row>
</sheetData></worksheet>`

const testSheetExtra = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>flag</t></is></c></row>
<row r="2"><c r="A2" t="b"><v>1</v></c></row>
</sheetData></worksheet>`

func writeXLSXFixture(t *testing.T, sheetNames []string, sheetXMLs []string, shared string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	add := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	var sheets, rels strings.Builder
	for i, name := range sheetNames {
		id := i + 1
		sheets.WriteString(fmt.Sprintf(`<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, name, id, id))
		target := fmt.Sprintf("worksheets/sheet%d.xml", id)
		if id == 2 {
			// Absolute target, as some producers write them.
			target = fmt.Sprintf("/xl/worksheets/sheet%d.xml", id)
		}
		rels.WriteString(fmt.Sprintf(`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="%s"/>`, id, target))
	}
	add("xl/workbook.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`+sheets.String()+`</sheets></workbook>`)
	add("xl/_rels/workbook.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+rels.String()+`</Relationships>`)
	if shared != "" {
		add("xl/sharedStrings.xml", shared)
	}
	for i, body := range sheetXMLs {
		add(fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), body)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

func TestXLSXReadTypes(t *testing.T) {
	path := writeXLSXFixture(t, []string{"Data", "Extra"}, []string{testSheetData, testSheetExtra}, testSharedStrings)
	tab, err := Load(path, ReadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tab.ColumnNames(); len(got) != 3 || got[0] != "Satisfaction" || got[1] != "Age" || got[2] != "Code" {
		t.Fatalf("columns = %v", got)
	}
	if got := tab.Rows(); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}

	sat := tab.Column("Satisfaction")
	if sat.OriginallyNumeric {
		t.Error("Satisfaction should be textual")
	}
	if sat.Cells[0].Text != "Very satisfied" {
		t.Errorf("shared string lookup: %+v", sat.Cells[0])
	}
	if sat.Cells[1].Text != "Dissatisfied" {
		t.Errorf("rich-text runs should concatenate: %+v", sat.Cells[1])
	}

	age := tab.Column("Age")
	if !age.OriginallyNumeric {
		t.Error("Age should be numeric from native cell types")
	}
	if age.Cells[0].Kind != Number || age.Cells[0].Num != 34 {
		t.Errorf("Age[0] = %+v, want 34", age.Cells[0])
	}
	if age.Cells[1].Kind != Missing {
		t.Errorf("gap cell should be absent, got %+v", age.Cells[1])
	}

	// Digit strings stored as text keep their textual type here.
	code := tab.Column("Code")
	if code.OriginallyNumeric {
		t.Error("Code stores strings and must not load as numeric")
	}
	if code.Cells[0].Text != "01" {
		t.Errorf("Code[0] = %+v, want 01", code.Cells[0])
	}
}

func TestXLSXSheetByName(t *testing.T) {
	path := writeXLSXFixture(t, []string{"Data", "Extra"}, []string{testSheetData, testSheetExtra}, testSharedStrings)
	tab, err := Load(path, ReadOptions{Sheet: "Extra"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	flag := tab.Column("flag")
	if flag == nil {
		t.Fatalf("columns = %v, want flag", tab.ColumnNames())
	}
	if flag.Cells[0].Text != "True" {
		t.Errorf("boolean cell = %+v, want True", flag.Cells[0])
	}
}

func TestXLSXSheetByIndex(t *testing.T) {
	path := writeXLSXFixture(t, []string{"Data", "Extra"}, []string{testSheetData, testSheetExtra}, testSharedStrings)
	tab, err := Load(path, ReadOptions{SheetIndex: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tab.Column("flag") == nil {
		t.Fatalf("columns = %v, want flag", tab.ColumnNames())
	}
}

func TestXLSXSheetNotFound(t *testing.T) {
	path := writeXLSXFixture(t, []string{"Data", "Extra"}, []string{testSheetData, testSheetExtra}, testSharedStrings)
	_, err := Load(path, ReadOptions{Sheet: "Nope"})
	if err == nil {
		t.Fatal("expected error for unknown sheet")
	}
	if !strings.Contains(err.Error(), "Data") || !strings.Contains(err.Error(), "Extra") {
		t.Errorf("error should list available sheets, got: %v", err)
	}
}

func TestColIndexFromRef(t *testing.T) {
	cases := []struct {
		ref  string
		want int
	}{
		{"A1", 0},
		{"B2", 1},
		{"Z9", 25},
		{"AA1", 26},
		{"AB10", 27},
		{"ab3", 27},
		{"", -1},
		{"123", -1},
	}
	for _, c := range cases {
		if got := colIndexFromRef(c.ref); got != c.want {
			t.Errorf("colIndexFromRef(%q) = %d, want %d", c.ref, got, c.want)
		}
	}
}

func TestNormalizeRelPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/xl/worksheets/sheet2.xml", "xl/worksheets/sheet2.xml"},
		{"xl/worksheets/sheet3.xml", "xl/worksheets/sheet3.xml"},
	}
	for _, c := range cases {
		if got := normalizeRelPath(c.in); got != c.want {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
