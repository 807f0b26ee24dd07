package ports

import (
	"context"

	"goprep/domain/core"
	"goprep/domain/preprocess"
)

// SubmissionLedger records preprocessing submissions and their outcome
type SubmissionLedger interface {
	Create(ctx context.Context, sub *preprocess.Submission) error
	MarkSucceeded(ctx context.Context, id core.SubmissionID, result preprocess.Result) error
	MarkFailed(ctx context.Context, id core.SubmissionID, message string) error
	Get(ctx context.Context, id core.SubmissionID) (*preprocess.Submission, error)
	List(ctx context.Context, limit int) ([]*preprocess.Submission, error)
}
