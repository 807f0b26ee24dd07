package dataset

import (
	"path/filepath"
	"strings"
	"time"

	"goprep/domain/core"
)

// Summary is the externally computed schema metadata for one dataset.
// A nil Columns or DTypes means the provider did not supply that part.
type Summary struct {
	Columns []string          `json:"columns"`
	DTypes  map[string]string `json:"dtypes"`
	Rows    int               `json:"rows,omitempty"`
	Missing map[string]int    `json:"missing_values,omitempty"`
}

// HasColumns reports whether the provider supplied a column list.
func (s *Summary) HasColumns() bool {
	return s != nil && s.Columns != nil
}

// HasDTypes reports whether the provider supplied a dtype mapping.
func (s *Summary) HasDTypes() bool {
	return s != nil && s.DTypes != nil
}

// SummaryEntry pairs a dataset identifier with its summary. Summary may be
// nil when the provider returned an unusable entry.
type SummaryEntry struct {
	ID      core.DatasetID `json:"id"`
	Summary *Summary       `json:"summary"`
}

// Summaries is the provider output in the order datasets were reported.
type Summaries []SummaryEntry

// IDs returns the dataset identifiers in order.
func (s Summaries) IDs() []core.DatasetID {
	ids := make([]core.DatasetID, 0, len(s))
	for _, e := range s {
		ids = append(ids, e.ID)
	}
	return ids
}

// Lookup returns the summary for id, if present.
func (s Summaries) Lookup(id core.DatasetID) (*Summary, bool) {
	for _, e := range s {
		if e.ID == id {
			return e.Summary, true
		}
	}
	return nil, false
}

// Handle is a raw dataset to submit: the identifier the execution service
// will key its result by, and where the bytes live.
type Handle struct {
	ID         core.DatasetID `json:"id"`
	Path       string         `json:"path"`
	Size       int64          `json:"size,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at,omitempty"`
}

// SupportedFile reports whether filename has an extension the readers handle
func SupportedFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// NewHandle builds a handle whose identifier is the file's base name, the
// convention the execution service uses for its result keys.
func NewHandle(path string) Handle {
	return Handle{ID: core.DatasetID(filepath.Base(path)), Path: path}
}

// HandleIDs returns the identifiers of the given handles, in order.
func HandleIDs(handles []Handle) []core.DatasetID {
	ids := make([]core.DatasetID, 0, len(handles))
	for _, h := range handles {
		ids = append(ids, h.ID)
	}
	return ids
}

// Suggestion is one dataset's suggested value.
type Suggestion struct {
	DatasetID core.DatasetID `json:"dataset_id"`
	Value     string         `json:"value"`
}

// Suggestions are upstream-computed defaults, kept in arrival order. Only the
// first entry of each list is consumed.
type Suggestions struct {
	MissingStrategies []Suggestion `json:"missing_strategies"`
	TargetColumns     []Suggestion `json:"target_columns"`
}

// IsEmpty reports whether neither suggestion list has entries.
func (s Suggestions) IsEmpty() bool {
	return len(s.MissingStrategies) == 0 && len(s.TargetColumns) == 0
}

// FirstMissingStrategy returns the first suggested strategy.
func (s Suggestions) FirstMissingStrategy() (string, bool) {
	if len(s.MissingStrategies) == 0 {
		return "", false
	}
	return s.MissingStrategies[0].Value, true
}

// FirstTargetColumn returns the first suggested target column. Empty
// suggestions are reported as absent.
func (s Suggestions) FirstTargetColumn() (string, bool) {
	if len(s.TargetColumns) == 0 || s.TargetColumns[0].Value == "" {
		return "", false
	}
	return s.TargetColumns[0].Value, true
}
