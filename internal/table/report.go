package table

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/savloom-cli/internal/sanitize"
)

// Summary describes a loaded dataset from the preparation pipeline's point
// of view: per-column type verdicts, category sets, and whether each column
// would be offered to the encoding advisor.
type Summary struct {
	Source  string          `json:"source"`
	Rows    int             `json:"rows"`
	Limit   int             `json:"category_limit"`
	Columns []ColumnSummary `json:"columns"`
}

// ColumnSummary is the per-column slice of a Summary.
type ColumnSummary struct {
	Name       string   `json:"name"`
	Identifier string   `json:"identifier"` // identifier the column would export under
	Numeric    bool     `json:"numeric"`
	MissingN   int      `json:"missing"`
	Categories []string `json:"categories,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"` // empty when the column is an encoding candidate
}

// Summarize inspects t without mutating it. limit is the advisor category
// gate, so the verdicts shown here match what a preparation run would do.
func Summarize(t *Table, limit int) *Summary {
	s := &Summary{Source: t.Source, Rows: t.Rows(), Limit: limit}
	finals := sanitize.UniqueBatch(t.ColumnNames())
	for i, col := range t.Columns {
		cs := ColumnSummary{
			Name:       col.Name,
			Identifier: finals[i],
			Numeric:    col.OriginallyNumeric,
		}
		for _, c := range col.Cells {
			if c.Kind == Missing {
				cs.MissingN++
			}
		}
		if !col.OriginallyNumeric {
			cs.Categories = Categories(col.Cells)
		}
		_, cs.SkipReason = Candidacy(col, limit)
		s.Columns = append(s.Columns, cs)
	}
	return s
}

// Markdown renders the summary as a compact report.
func (s *Summary) Markdown() string {
	var sb strings.Builder
	sb.WriteString("[DATASET]\n")
	sb.WriteString(fmt.Sprintf("- Source: %s\n", s.Source))
	sb.WriteString(fmt.Sprintf("- Rows: %d\n", s.Rows))
	sb.WriteString(fmt.Sprintf("- Columns: %d\n", len(s.Columns)))
	sb.WriteString(fmt.Sprintf("- Category limit: %d\n", s.Limit))

	sb.WriteString("\n[COLUMNS]\n")
	for _, c := range s.Columns {
		kind := "text"
		if c.Numeric {
			kind = "numeric"
		}
		line := fmt.Sprintf("- %s -> %s: %s", safeName(c.Name), c.Identifier, kind)
		if c.MissingN > 0 {
			line += fmt.Sprintf(", %d missing", c.MissingN)
		}
		if len(c.Categories) > 0 {
			line += fmt.Sprintf(", %d categories: %s", len(c.Categories), joinCategories(c.Categories, 8))
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n[ENCODING CANDIDATES]\n")
	candidates := 0
	for _, c := range s.Columns {
		if c.SkipReason == "" {
			sb.WriteString(fmt.Sprintf("- %s: %d categories\n", safeName(c.Name), len(c.Categories)))
			candidates++
		}
	}
	if candidates == 0 {
		sb.WriteString("(none)\n")
	}

	sb.WriteString("\n[SKIPPED]\n")
	skipped := 0
	for _, c := range s.Columns {
		if c.SkipReason != "" {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", safeName(c.Name), c.SkipReason))
			skipped++
		}
	}
	if skipped == 0 {
		sb.WriteString("(none)\n")
	}
	return sb.String()
}

func safeName(s string) string {
	s = strings.NewReplacer("\n", " ", "\r", " ", "|", "/").Replace(s)
	r := []rune(s)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}

func joinCategories(cats []string, max int) string {
	shown := cats
	extra := 0
	if len(shown) > max {
		extra = len(shown) - max
		shown = shown[:max]
	}
	parts := make([]string, len(shown))
	for i, c := range shown {
		parts[i] = safeName(TruncateLabel(c, 40))
	}
	out := strings.Join(parts, " | ")
	if extra > 0 {
		out += fmt.Sprintf(" | (+%d more)", extra)
	}
	return out
}
