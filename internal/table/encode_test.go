package table

import (
	"reflect"
	"strings"
	"testing"
)

var satisfactionMapping = map[string]int{
	"Very satisfied": 1,
	"Satisfied":      2,
	"Dissatisfied":   3,
	"nan":            99,
}

func TestApplyMapping(t *testing.T) {
	cells := []Cell{
		TextCell("Very satisfied"),
		TextCell("Satisfied"),
		TextCell("Dissatisfied"),
		TextCell("Very satisfied"),
		TextCell("nan"),
	}
	got := ApplyMapping(cells, satisfactionMapping)
	want := []float64{1, 2, 3, 1, 99}
	if len(got) != len(cells) {
		t.Fatalf("row count changed: %d -> %d", len(cells), len(got))
	}
	for i, cell := range got {
		if cell.Kind != Number || cell.Num != want[i] {
			t.Errorf("row %d: got %+v, want %v", i, cell, want[i])
		}
	}
	// Source cells stay untouched.
	if cells[0].Kind != Text || cells[0].Text != "Very satisfied" {
		t.Fatalf("ApplyMapping mutated its input: %+v", cells[0])
	}
}

func TestApplyMappingUnmappedBecomesMissing(t *testing.T) {
	cells := []Cell{TextCell("Satisfied"), TextCell("Neutral"), {}}
	got := ApplyMapping(cells, map[string]int{"Satisfied": 2})
	if got[0].Kind != Number || got[0].Num != 2 {
		t.Errorf("mapped value wrong: %+v", got[0])
	}
	if got[1].Kind != Missing {
		t.Errorf("unmapped value should be missing, got %+v", got[1])
	}
	if got[2].Kind != Missing {
		t.Errorf("absent value without marker mapping should stay missing, got %+v", got[2])
	}
}

func TestApplyMappingAbsentUsesMarkerCode(t *testing.T) {
	// An absent cell normalizes to the marker, so a mapped marker code
	// applies to genuinely empty cells too.
	got := ApplyMapping([]Cell{{}}, map[string]int{"nan": 99})
	if got[0].Kind != Number || got[0].Num != 99 {
		t.Fatalf("absent cell did not use the marker code: %+v", got[0])
	}
}

func TestUnmappedCategories(t *testing.T) {
	cats := []string{"a", "b", "c"}
	got := UnmappedCategories(cats, map[string]int{"a": 1, "c": 3})
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("UnmappedCategories = %v, want [b]", got)
	}
	if got := UnmappedCategories(cats, map[string]int{"a": 1, "b": 2, "c": 3}); got != nil {
		t.Fatalf("complete mapping reported unmapped categories: %v", got)
	}
}

func TestInvertMapping(t *testing.T) {
	labels, dropped := InvertMapping(satisfactionMapping)
	want := map[int]string{1: "Very satisfied", 2: "Satisfied", 3: "Dissatisfied", 99: "nan"}
	if !reflect.DeepEqual(labels, want) {
		t.Fatalf("InvertMapping = %v, want %v", labels, want)
	}
	if len(dropped) != 0 {
		t.Fatalf("injective mapping reported dropped labels: %v", dropped)
	}
}

func TestInvertMappingTieBreak(t *testing.T) {
	// Two categories on one code: the first in sorted order keeps the
	// label, the loser is reported.
	labels, dropped := InvertMapping(map[string]int{"Maybe": 2, "Don't know": 2, "Yes": 1})
	if labels[2] != "Don't know" {
		t.Errorf("tie-break picked %q, want first sorted category", labels[2])
	}
	if !reflect.DeepEqual(dropped, []string{"Maybe"}) {
		t.Errorf("dropped = %v, want [Maybe]", dropped)
	}
}

func TestInvertMappingTruncatesLabels(t *testing.T) {
	long := strings.Repeat("x", 150)
	labels, _ := InvertMapping(map[string]int{long: 1})
	if got := len([]rune(labels[1])); got != MaxValueLabelLen {
		t.Fatalf("label length = %d, want %d", got, MaxValueLabelLen)
	}
}

func TestTruncateLabel(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 120, "short"},
		{"abcdef", 3, "abc"},
		{"ééééé", 3, "ééé"},
		{"", 5, ""},
	}
	for _, c := range cases {
		if got := TruncateLabel(c.in, c.max); got != c.want {
			t.Errorf("TruncateLabel(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}
