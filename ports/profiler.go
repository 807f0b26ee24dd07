package ports

import (
	"context"

	"goprep/domain/dataset"
)

// SummaryProvider computes per-dataset schema summaries and suggested
// defaults for a set of uploaded datasets
type SummaryProvider interface {
	Summarize(ctx context.Context, datasets []dataset.Handle) (dataset.Summaries, dataset.Suggestions, error)
}
