package ports

import (
	"context"
	"fmt"

	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
)

// ProgressFunc receives a completion percentage in [0,100]
type ProgressFunc func(percent int)

// ExecutionService performs imputation, scaling and encoding on a batch of
// datasets. One call covers the whole batch; the result has one artifact
// reference per input dataset or the call fails.
type ExecutionService interface {
	Preprocess(ctx context.Context, req preprocess.WireRequest, datasets []dataset.Handle, progress ProgressFunc) (preprocess.Result, error)
}

// DownloadResolver turns an artifact reference into a retrievable URL
type DownloadResolver interface {
	DownloadURL(ref core.ArtifactRef) string
}

// ServiceError is a failure reported by the execution service itself, as
// opposed to a transport failure. Message is the service-provided detail.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Service, e.StatusCode)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}
