package table

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeValue(t *testing.T) {
	cases := []struct {
		name string
		in   Cell
		want string
	}{
		{"missing", Cell{}, "nan"},
		{"plain text", TextCell("Satisfied"), "Satisfied"},
		{"padded text", TextCell("  Satisfied  "), "Satisfied"},
		{"empty text", TextCell(""), "nan"},
		{"whitespace text", TextCell("   "), "nan"},
		{"literal marker", TextCell("nan"), "nan"},
		{"integer number", NumberCell(3), "3"},
		{"fraction", NumberCell(2.5), "2.5"},
		{"negative", NumberCell(-1), "-1"},
	}
	for _, c := range cases {
		if got := NormalizeValue(c.in); got != c.want {
			t.Errorf("%s: NormalizeValue = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCategories(t *testing.T) {
	cells := []Cell{
		TextCell("Satisfied"),
		TextCell("  Very satisfied"),
		{},
		TextCell("Dissatisfied"),
		TextCell("Satisfied"),
		TextCell(""),
		TextCell("nan"),
	}
	got := Categories(cells)
	want := []string{"Dissatisfied", "Satisfied", "Very satisfied", "nan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Categories = %v, want %v", got, want)
	}
	for _, c := range got {
		if c != strings.TrimSpace(c) {
			t.Errorf("category %q carries surrounding whitespace", c)
		}
	}
}

func TestCategoriesAllNull(t *testing.T) {
	if got := Categories([]Cell{{}, {}, {}}); len(got) != 0 {
		t.Fatalf("all-null column produced categories: %v", got)
	}
}

func TestCategoriesEmptyEqualsNull(t *testing.T) {
	a := Categories([]Cell{TextCell(""), TextCell("x")})
	b := Categories([]Cell{TextCell("nan"), TextCell("x")})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("empty cell and marker normalize differently: %v vs %v", a, b)
	}
}

func TestCandidacy(t *testing.T) {
	textCol := func(vals ...string) *Column {
		c := &Column{Name: "c"}
		for _, v := range vals {
			c.Cells = append(c.Cells, TextCell(v))
		}
		return c
	}
	many := make([]string, 20)
	for i := range many {
		many[i] = string(rune('a' + i))
	}

	cases := []struct {
		name       string
		col        *Column
		wantCats   int
		wantReason string
	}{
		{"eligible", textCol("a", "b", "c"), 3, ""},
		{"numeric source", &Column{Name: "n", OriginallyNumeric: true}, 0, "numeric source column"},
		{"empty", textCol(), 0, "too few categories (0)"},
		{"single", textCol("a", "a", "a"), 0, "too few categories (1)"},
		{"over limit", textCol(many...), 0, "too many categories (20 > 15)"},
	}
	for _, c := range cases {
		cats, reason := Candidacy(c.col, 15)
		if len(cats) != c.wantCats {
			t.Errorf("%s: got %d categories, want %d", c.name, len(cats), c.wantCats)
		}
		if reason != c.wantReason {
			t.Errorf("%s: reason = %q, want %q", c.name, reason, c.wantReason)
		}
	}
}

func TestCandidacyIgnoresDerivedValues(t *testing.T) {
	// A numeric-at-load column never becomes a candidate even if someone
	// later swaps text into its cells.
	col := &Column{Name: "n", OriginallyNumeric: true, Cells: []Cell{TextCell("a"), TextCell("b")}}
	if cats, reason := Candidacy(col, 15); reason != "numeric source column" || cats != nil {
		t.Fatalf("Candidacy = (%v, %q), want numeric skip", cats, reason)
	}
}
