package table

import (
	"strings"
	"testing"
)

func summaryFixture() *Table {
	return &Table{
		Source: "survey.csv",
		Columns: []*Column{
			{Name: "Satisfaction", Cells: []Cell{TextCell("Satisfied"), TextCell("Dissatisfied"), {}}},
			{Name: "Age", OriginallyNumeric: true, Cells: []Cell{NumberCell(34), NumberCell(41), NumberCell(28)}},
			{Name: "Q1 (a)", Cells: []Cell{TextCell("x"), TextCell("x"), TextCell("x")}},
			{Name: "Q1-a", Cells: []Cell{TextCell("y"), TextCell("z"), {}}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(summaryFixture(), 15)
	if s.Rows != 3 {
		t.Fatalf("rows = %d, want 3", s.Rows)
	}
	if len(s.Columns) != 4 {
		t.Fatalf("columns = %d, want 4", len(s.Columns))
	}

	if s.Columns[0].SkipReason != "" {
		t.Errorf("Satisfaction should be a candidate, got skip %q", s.Columns[0].SkipReason)
	}
	if s.Columns[0].MissingN != 1 {
		t.Errorf("Satisfaction missing = %d, want 1", s.Columns[0].MissingN)
	}
	if s.Columns[1].SkipReason != "numeric source column" {
		t.Errorf("Age skip = %q", s.Columns[1].SkipReason)
	}
	if s.Columns[2].SkipReason != "too few categories (1)" {
		t.Errorf("Q1 (a) skip = %q", s.Columns[2].SkipReason)
	}

	// Identifier previews are deduplicated the same way export would.
	if s.Columns[2].Identifier != "Q1_a" || s.Columns[3].Identifier != "Q1_a_1" {
		t.Errorf("identifier previews = %q, %q", s.Columns[2].Identifier, s.Columns[3].Identifier)
	}
}

func TestSummaryMarkdown(t *testing.T) {
	md := Summarize(summaryFixture(), 15).Markdown()
	for _, want := range []string{
		"[DATASET]",
		"[COLUMNS]",
		"[ENCODING CANDIDATES]",
		"[SKIPPED]",
		"- Source: survey.csv",
		"Satisfaction",
		"numeric source column",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q:\n%s", want, md)
		}
	}
}

func TestSummaryMarkdownNoCandidates(t *testing.T) {
	tab := &Table{
		Source:  "n.csv",
		Columns: []*Column{{Name: "n", OriginallyNumeric: true, Cells: []Cell{NumberCell(1)}}},
	}
	md := Summarize(tab, 15).Markdown()
	if !strings.Contains(md, "(none)") {
		t.Errorf("expected (none) placeholder:\n%s", md)
	}
}
