package tabular

import (
	"context"
	"log"

	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/schema"
	"goprep/ports"
)

// SummaryProvider computes dataset summaries and suggested defaults from
// local files.
type SummaryProvider struct {
	config InferenceConfig
}

// NewSummaryProvider creates a provider using the given inference thresholds
func NewSummaryProvider(config InferenceConfig) *SummaryProvider {
	return &SummaryProvider{config: config}
}

var _ ports.SummaryProvider = (*SummaryProvider)(nil)

// Summarize reads every dataset and reports its columns, dtypes, row count
// and missing-value counts. A file that cannot be read yields an entry with
// a nil summary instead of failing the batch.
func (p *SummaryProvider) Summarize(ctx context.Context, handles []dataset.Handle) (dataset.Summaries, dataset.Suggestions, error) {
	summaries := make(dataset.Summaries, 0, len(handles))
	var suggestions dataset.Suggestions

	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, dataset.Suggestions{}, err
		}

		table, err := NewReader(h.Path).Read()
		if err != nil {
			log.Printf("[SummaryProvider] Skipping %s: %v", h.ID, err)
			summaries = append(summaries, dataset.SummaryEntry{ID: h.ID})
			continue
		}

		summary := p.summarize(table)
		summaries = append(summaries, dataset.SummaryEntry{ID: h.ID, Summary: summary})

		suggestions.MissingStrategies = append(suggestions.MissingStrategies,
			dataset.Suggestion{DatasetID: h.ID, Value: string(SuggestMissingStrategy(summary))})
		if target := SuggestTargetColumn(summary); target != "" {
			suggestions.TargetColumns = append(suggestions.TargetColumns,
				dataset.Suggestion{DatasetID: h.ID, Value: target})
		}
	}
	return summaries, suggestions, nil
}

func (p *SummaryProvider) summarize(t *Table) *dataset.Summary {
	summary := &dataset.Summary{
		Columns: append([]string{}, t.Headers...),
		DTypes:  p.config.InferDTypes(t),
		Rows:    len(t.Rows),
		Missing: make(map[string]int, len(t.Headers)),
	}
	for j, h := range t.Headers {
		n := 0
		for _, row := range t.Rows {
			if IsMissing(row[j]) {
				n++
			}
		}
		summary.Missing[h] = n
	}
	return summary
}

// SuggestMissingStrategy picks a default imputation: mode when a
// categorical column has gaps, median when only numeric columns do, mean
// otherwise.
func SuggestMissingStrategy(s *dataset.Summary) preprocess.MissingStrategy {
	numericGaps, categoricalGaps := false, false
	for _, col := range s.Columns {
		if s.Missing[col] == 0 {
			continue
		}
		tag := s.DTypes[col]
		switch {
		case schema.IsCategoricalTag(tag):
			categoricalGaps = true
		case schema.IsNumericTag(tag):
			numericGaps = true
		}
	}
	switch {
	case categoricalGaps:
		return preprocess.MissingMode
	case numericGaps:
		return preprocess.MissingMedian
	default:
		return preprocess.MissingMean
	}
}

// SuggestTargetColumn proposes the last column, the usual place for a label.
func SuggestTargetColumn(s *dataset.Summary) string {
	if len(s.Columns) == 0 {
		return ""
	}
	return s.Columns[len(s.Columns)-1]
}
