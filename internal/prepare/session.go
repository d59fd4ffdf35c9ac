// Package prepare drives the categorical-encoding pipeline: it walks a loaded
// table column by column, consults the advisor where a column qualifies, and
// reconciles identifiers, labels, and missing declarations into an
// export-ready bundle. All mutable run state lives in an explicit Session.
package prepare

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/savloom-cli/internal/advisor"
	"github.com/KaramelBytes/savloom-cli/internal/table"
)

// VarRef is a stable handle for one output column. Labels and value tables
// hang off the handle rather than the column name, so renames never orphan
// metadata and two source names that sanitize alike stay distinguishable.
type VarRef struct {
	ID          string
	Current     string // identifier as of the latest rename
	Original    string // name the column first bore
	DerivedFrom string // ID of the source handle for derived columns

	VarLabel    string
	ValueLabels map[int]string
	MissingVals []string
}

// Session carries the mutable state of one prepare run: column handles, the
// advisor reply cache, the ordered processing log, and the advisor-down
// latch. A batch shares one session so cache hits and the latch span files.
type Session struct {
	ID      string
	Started time.Time

	refs        []*VarRef
	cache       map[string]*advisor.Suggestion
	logLines    []string
	advisorDown bool
	advisorErr  error
}

// NewSession returns an empty session with a fresh run ID.
func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		cache:   make(map[string]*advisor.Suggestion),
	}
}

// Track registers a source column under its loaded name. The variable label
// starts as the original text and stays that way unless a collaborator
// supplies something better.
func (s *Session) Track(name string) *VarRef {
	ref := &VarRef{
		ID:       uuid.NewString(),
		Current:  name,
		Original: name,
		VarLabel: table.TruncateLabel(name, table.MaxVariableLabelLen),
	}
	s.refs = append(s.refs, ref)
	return ref
}

// Derive registers a column produced from src under its creation name.
func (s *Session) Derive(src *VarRef, name string) *VarRef {
	ref := &VarRef{
		ID:          uuid.NewString(),
		Current:     name,
		Original:    name,
		DerivedFrom: src.ID,
	}
	s.refs = append(s.refs, ref)
	return ref
}

// Rename points a handle at a new current identifier.
func (s *Session) Rename(ref *VarRef, name string) {
	ref.Current = name
}

// Ref returns the handle whose current identifier is name, or nil. Linear
// scan: survey tables have tens of columns, and a name index would go stale
// during batch renames.
func (s *Session) Ref(name string) *VarRef {
	for _, ref := range s.refs {
		if ref.Current == name {
			return ref
		}
	}
	return nil
}

// RefByID returns the handle with the given ID, or nil.
func (s *Session) RefByID(id string) *VarRef {
	for _, ref := range s.refs {
		if ref.ID == id {
			return ref
		}
	}
	return nil
}

// Refs returns the handles in registration order.
func (s *Session) Refs() []*VarRef {
	return s.refs
}

// resetRefs drops the column handles from a previous run in the same
// session. The cache, log, and advisor latch carry over.
func (s *Session) resetRefs() {
	s.refs = nil
}

// Logf appends one line to the ordered processing log.
func (s *Session) Logf(format string, args ...any) {
	s.logLines = append(s.logLines, fmt.Sprintf(format, args...))
}

// Log returns the processing log in the order it was written.
func (s *Session) Log() []string {
	return s.logLines
}

// MarkAdvisorDown latches the advisor as unavailable for the rest of the
// session; encoding is skipped from then on instead of retrying per column.
// The first cause is kept so the caller can explain the degradation.
func (s *Session) MarkAdvisorDown(cause error) {
	if !s.advisorDown {
		s.advisorErr = cause
	}
	s.advisorDown = true
}

// AdvisorDown reports whether the latch is set.
func (s *Session) AdvisorDown() bool {
	return s.advisorDown
}

// AdvisorCause returns the error that set the latch, or nil.
func (s *Session) AdvisorCause() error {
	return s.advisorErr
}

// cacheKey joins the ordered category tuple with an unprintable separator so
// distinct tuples cannot collide.
func cacheKey(categories []string) string {
	return strings.Join(categories, "\x1f")
}

func (s *Session) cachedSuggestion(categories []string) (*advisor.Suggestion, bool) {
	sug, ok := s.cache[cacheKey(categories)]
	return sug, ok
}

func (s *Session) storeSuggestion(categories []string, sug *advisor.Suggestion) {
	s.cache[cacheKey(categories)] = sug
}
