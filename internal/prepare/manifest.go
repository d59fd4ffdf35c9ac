package prepare

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

// Manifest is the JSON run record written beside the bundle: where the data
// came from, what was decided per column, and the full processing log.
type Manifest struct {
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	Input     string           `json:"input"`
	Outputs   []string         `json:"outputs"`
	Mode      string           `json:"mode"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Columns   []ManifestColumn `json:"columns"`
	Log       []string         `json:"log"`
}

// ManifestColumn records what happened to one output column.
type ManifestColumn struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Label        string `json:"label"`
	Encoded      bool   `json:"encoded"`
	DerivedFrom  string `json:"derived_from,omitempty"`
}

// BuildManifest assembles the run record for one prepared file.
func BuildManifest(sess *Session, b *Bundle, input string, outputs []string, mode Mode, provider, model string) *Manifest {
	m := &Manifest{
		SessionID: sess.ID,
		CreatedAt: time.Now().UTC(),
		Input:     input,
		Outputs:   outputs,
		Mode:      string(mode),
		Provider:  provider,
		Model:     model,
		Columns:   make([]ManifestColumn, 0, len(b.Table.Columns)),
		Log:       sess.Log(),
	}
	for i, col := range b.Table.Columns {
		mc := ManifestColumn{
			Name:         col.Name,
			OriginalName: b.OriginalName[col.Name],
			Label:        b.VarLabels[i],
			Encoded:      len(b.ValueLabels[col.Name]) > 0,
		}
		if ref := sess.Ref(col.Name); ref != nil && ref.DerivedFrom != "" {
			if src := sess.RefByID(ref.DerivedFrom); src != nil {
				mc.DerivedFrom = src.Current
			}
		}
		m.Columns = append(m.Columns, mc)
	}
	return m
}

// WriteManifest writes the run record as indented JSON through the atomic
// writer.
func WriteManifest(path string, m *Manifest) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, data)
}
