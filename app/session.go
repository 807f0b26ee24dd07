package app

import (
	"context"
	"sync"
	"sync/atomic"

	"goprep/domain/dataset"
	"goprep/internal/preprocessing"
	"goprep/internal/schema"
	"goprep/ports"
)

// DefaultSessionID is used when a client does not name its session
const DefaultSessionID = "default"

// Session is one operator's workspace: uploaded datasets, their summaries,
// the configuration being edited and the single submission slot.
type Session struct {
	ID           string
	State        *preprocessing.State
	store        ports.DatasetStore
	orchestrator *preprocessing.Orchestrator
	submitting   atomic.Bool

	mu             sync.RWMutex
	summaries      dataset.Summaries
	suggestions    dataset.Suggestions
	classification schema.Classification
}

// ColumnsView is what the column selectors render from
type ColumnsView struct {
	Datasets       []dataset.Handle       `json:"datasets"`
	Classification schema.Classification  `json:"classification"`
	Roles          map[string]schema.Role `json:"roles"`
	Summaries      dataset.Summaries      `json:"summaries"`
	Suggestions    dataset.Suggestions    `json:"suggestions"`
}

// Datasets returns the session's uploaded datasets
func (s *Session) Datasets(ctx context.Context) ([]dataset.Handle, error) {
	return s.store.List(ctx)
}

// Classification returns the classification of the current summaries
func (s *Session) Classification() schema.Classification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classification
}

// refresh recomputes summaries and classification from the stored datasets,
// then seeds column subsets and applies suggested defaults.
func (s *Session) refresh(ctx context.Context, provider ports.SummaryProvider) error {
	handles, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	summaries, suggestions, err := provider.Summarize(ctx, handles)
	if err != nil {
		return err
	}
	classification := schema.Classify(summaries)

	s.mu.Lock()
	s.summaries = summaries
	s.suggestions = suggestions
	s.classification = classification
	s.mu.Unlock()

	s.State.SeedColumns(classification)
	s.State.ApplySuggestions(suggestions)
	return nil
}

func (s *Session) columns(handles []dataset.Handle) ColumnsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ColumnsView{
		Datasets:       handles,
		Classification: s.classification,
		Roles:          s.classification.Roles(),
		Summaries:      s.summaries,
		Suggestions:    s.suggestions,
	}
}
