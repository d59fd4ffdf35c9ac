package prepare

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaramelBytes/savloom-cli/internal/advisor"
	"github.com/KaramelBytes/savloom-cli/internal/sanitize"
	"github.com/KaramelBytes/savloom-cli/internal/table"
)

// Advisor is the collaborator seam the pipeline consults. The concrete
// implementation lives in internal/advisor; tests substitute stubs and
// offline runs pass nil.
type Advisor interface {
	SuggestEncoding(ctx context.Context, categories []string) (*advisor.Suggestion, error)
	SimplifyNames(ctx context.Context, names []string) (map[string]string, error)
	GenerateLabels(ctx context.Context, questions map[string]string) (map[string]string, error)
}

// Mode selects where encoded values land.
type Mode string

const (
	// ModeDerive writes codes into a new <source>_num column.
	ModeDerive Mode = "derive"
	// ModeReplace overwrites the source column with codes.
	ModeReplace Mode = "replace"
)

// Options control one pipeline run.
type Options struct {
	Mode           Mode
	Columns        []string // restrict encoding to these columns; empty means all
	CategoryLimit  int
	SimplifyNames  bool
	GenerateLabels bool
}

// simplifyMaxWords bounds the local fallback identifier to the leading words
// of the question text.
const simplifyMaxWords = 3

// Run executes the preparation pipeline over t in place: optional identifier
// simplification, variable labels, per-column categorical encoding, the
// mandatory final sanitization pass, and missing-value classification. Every
// decision lands in the session log. A nil adv runs fully offline. The only
// error is context cancellation between columns; anything else degrades
// locally and the batch keeps going.
func Run(ctx context.Context, sess *Session, t *table.Table, adv Advisor, opts Options) error {
	if opts.CategoryLimit <= 0 {
		opts.CategoryLimit = 15
	}
	if opts.Mode == "" {
		opts.Mode = ModeDerive
	}

	sess.resetRefs()
	for _, col := range t.Columns {
		sess.Track(col.Name)
	}
	sess.Logf("loaded %q: %d columns, %d rows", t.Source, len(t.Columns), t.Rows())

	if opts.SimplifyNames {
		simplifyIdentifiers(ctx, sess, t, adv)
	}
	if opts.GenerateLabels {
		generateVariableLabels(ctx, sess, adv)
	}
	if err := encodeColumns(ctx, sess, t, adv, opts); err != nil {
		return err
	}
	finalizeIdentifiers(sess, t)
	classifyMissing(sess, t)
	return nil
}

// simplifyIdentifiers renames every column to a short identifier, preferring
// advisor proposals and deriving one from the leading words of the question
// for any name the advisor does not cover.
func simplifyIdentifiers(ctx context.Context, sess *Session, t *table.Table, adv Advisor) {
	names := t.ColumnNames()
	proposals := map[string]string{}
	if adv == nil || sess.AdvisorDown() {
		sess.Logf("advisor disabled; simplifying names locally")
	} else {
		got, err := adv.SimplifyNames(ctx, names)
		switch {
		case err == nil:
			proposals = got
			sess.Logf("advisor proposed %d simplified names", len(got))
		case advisor.IsUnavailable(err):
			sess.MarkAdvisorDown(err)
			sess.Logf("advisor unavailable (%v); simplifying names locally", err)
		default:
			sess.Logf("simplified-name reply unusable (%v); simplifying names locally", err)
		}
	}

	taken := make(map[string]struct{}, len(names))
	targets := make([]string, len(names))
	for i, name := range names {
		proposed := strings.TrimSpace(proposals[name])
		if proposed != "" {
			proposed = sanitize.Sanitize(proposed)
		} else {
			proposed = sanitize.FromWords(name, simplifyMaxWords)
			if len(proposals) > 0 {
				sess.Logf("no usable proposal for %q; derived %q locally", name, proposed)
			}
		}
		unique := sanitize.UniqueAgainst(proposed, taken)
		taken[unique] = struct{}{}
		targets[i] = unique
	}

	// Resolve every handle before renaming anything: a target may collide
	// with a current name that is itself about to change.
	refs := make([]*VarRef, len(t.Columns))
	for i, col := range t.Columns {
		refs[i] = sess.Ref(col.Name)
	}
	for i, col := range t.Columns {
		if targets[i] == col.Name || refs[i] == nil {
			continue
		}
		sess.Rename(refs[i], targets[i])
		col.Name = targets[i]
		sess.Logf("renamed %q -> %q", refs[i].Original, targets[i])
	}
}

// generateVariableLabels asks the advisor for readable labels; any gap keeps
// the original question text set at Track time.
func generateVariableLabels(ctx context.Context, sess *Session, adv Advisor) {
	if adv == nil || sess.AdvisorDown() {
		sess.Logf("advisor disabled; variable labels keep the original question text")
		return
	}
	questions := make(map[string]string, len(sess.Refs()))
	for _, ref := range sess.Refs() {
		questions[ref.Current] = ref.Original
	}
	got, err := adv.GenerateLabels(ctx, questions)
	if err != nil {
		if advisor.IsUnavailable(err) {
			sess.MarkAdvisorDown(err)
			sess.Logf("advisor unavailable (%v); variable labels keep the original question text", err)
		} else {
			sess.Logf("label reply unusable (%v); variable labels keep the original question text", err)
		}
		return
	}
	applied := 0
	for _, ref := range sess.Refs() {
		label := strings.TrimSpace(got[ref.Current])
		if label == "" {
			continue
		}
		ref.VarLabel = table.TruncateLabel(label, table.MaxVariableLabelLen)
		applied++
	}
	if missing := len(sess.Refs()) - applied; missing > 0 {
		sess.Logf("variable labels: %d generated, %d kept original text", applied, missing)
	} else {
		sess.Logf("variable labels generated for all %d columns", applied)
	}
}

// encodeColumns evaluates each eligible column against the advisor and
// applies any validated mapping per the selected mode. A column's data,
// value-label table, and variable label land together once its evaluation
// completes; no column is left half-done.
func encodeColumns(ctx context.Context, sess *Session, t *table.Table, adv Advisor, opts Options) error {
	if adv == nil && !sess.AdvisorDown() {
		sess.Logf("advisor disabled; no encoding will be applied")
	}
	cols := append([]*table.Column(nil), t.Columns...)
	for _, col := range cols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if col.OriginallyNumeric {
			continue
		}
		ref := sess.Ref(col.Name)
		if ref == nil {
			sess.Logf("skip %q: no column handle, identity lost", col.Name)
			continue
		}
		if !selected(ref, opts.Columns) {
			continue
		}
		cats, reason := table.Candidacy(col, opts.CategoryLimit)
		if reason != "" {
			sess.Logf("skip %q: %s", col.Name, reason)
			continue
		}
		if adv == nil || sess.AdvisorDown() {
			sess.Logf("skip %q: advisor unavailable, left unencoded", col.Name)
			continue
		}

		sug, hit := sess.cachedSuggestion(cats)
		if hit {
			sess.Logf("cache hit for %q (%d categories)", col.Name, len(cats))
		} else {
			got, err := adv.SuggestEncoding(ctx, cats)
			if err != nil {
				if advisor.IsUnavailable(err) {
					sess.MarkAdvisorDown(err)
					sess.Logf("advisor unavailable (%v); remaining columns stay unencoded", err)
					sess.Logf("skip %q: advisor unavailable, left unencoded", col.Name)
					continue
				}
				// Unusable reply: this column needs no encoding as far as
				// the run is concerned; the next column still gets asked.
				sess.Logf("skip %q: suggestion unusable (%v)", col.Name, err)
				continue
			}
			sug = got
			sess.storeSuggestion(cats, sug)
		}

		if len(sug.UnknownKeys) > 0 {
			sess.Logf("suggestion for %q ignored unknown categories: %s", col.Name, strings.Join(sug.UnknownKeys, ", "))
		}
		if !sug.NeedsEncoding || len(sug.Mapping) == 0 {
			sess.Logf("no encoding for %q: advisor reports none needed", col.Name)
			continue
		}
		if unmapped := table.UnmappedCategories(cats, sug.Mapping); len(unmapped) > 0 {
			sess.Logf("partial mapping for %q: unmapped categories become missing: %s", col.Name, strings.Join(unmapped, ", "))
		}

		encoded := table.ApplyMapping(col.Cells, sug.Mapping)
		labels, dropped := table.InvertMapping(sug.Mapping)
		if len(dropped) > 0 {
			sess.Logf("duplicate codes for %q: kept the first label per code, dropped: %s", col.Name, strings.Join(dropped, ", "))
		}

		switch opts.Mode {
		case ModeReplace:
			col.Cells = encoded
			ref.ValueLabels = labels
			sess.Logf("encoded %q in place (%d categories)", col.Name, len(cats))
		default:
			name := derivedName(t, col.Name)
			t.Columns = append(t.Columns, &table.Column{
				Name:              name,
				Cells:             encoded,
				OriginallyNumeric: true,
			})
			dref := sess.Derive(ref, name)
			dref.VarLabel = table.TruncateLabel(ref.VarLabel+" (Encoded)", table.MaxVariableLabelLen)
			dref.ValueLabels = labels
			sess.Logf("encoded %q into new column %q (%d categories)", col.Name, name, len(cats))
		}
	}
	return nil
}

func selected(ref *VarRef, only []string) bool {
	if len(only) == 0 {
		return true
	}
	for _, want := range only {
		if want == ref.Original || want == ref.Current {
			return true
		}
	}
	return false
}

// derivedName returns <source>_num, deduplicated against existing columns by
// the same _N rule the sanitizer uses.
func derivedName(t *table.Table, source string) string {
	taken := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		taken[col.Name] = struct{}{}
	}
	base := source + "_num"
	if _, exists := taken[base]; !exists {
		return base
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_%d", base, n)
		if _, exists := taken[cand]; !exists {
			return cand
		}
	}
}

// finalizeIdentifiers is the mandatory last pass before export: every column
// gets its batch-sanitized identifier regardless of which optional steps ran,
// and the metadata follows the handles to the final names.
func finalizeIdentifiers(sess *Session, t *table.Table) {
	refs := make([]*VarRef, len(t.Columns))
	for i, col := range t.Columns {
		refs[i] = sess.Ref(col.Name)
	}
	finals := sanitize.UniqueBatch(t.ColumnNames())
	for i, col := range t.Columns {
		if finals[i] != col.Name {
			sess.Logf("final identifier: %q -> %q", col.Name, finals[i])
		}
		col.Name = finals[i]
		if refs[i] != nil {
			sess.Rename(refs[i], finals[i])
		}
	}
}

// classifyMissing settles each column's export type. Natively numeric
// columns, encoded ones included, rely on the target format's own missing
// representation. A textual column converts wholesale to numeric when every
// non-missing value coerces and at least one real number is present;
// otherwise it stays textual with the canonical marker declared as its
// missing value.
func classifyMissing(sess *Session, t *table.Table) {
	for _, col := range t.Columns {
		if table.AllNumeric(col.Cells) {
			continue
		}
		if conv, ok := table.CoerceNumeric(col.Cells); ok && hasNumber(conv) {
			col.Cells = conv
			sess.Logf("column %q converted to numeric", col.Name)
			continue
		}
		if ref := sess.Ref(col.Name); ref != nil {
			ref.MissingVals = []string{table.MissingMarker}
		}
		sess.Logf("column %q stays textual; %q declared as its missing value", col.Name, table.MissingMarker)
	}
}

func hasNumber(cells []table.Cell) bool {
	for _, c := range cells {
		if c.Kind == table.Number {
			return true
		}
	}
	return false
}
