package ports

import (
	"context"
	"io"

	"goprep/domain/core"
	"goprep/domain/dataset"
)

// DatasetStore keeps uploaded raw datasets until they are submitted
type DatasetStore interface {
	Store(ctx context.Context, r io.Reader, filename string) (dataset.Handle, error)
	List(ctx context.Context) ([]dataset.Handle, error)
	Remove(ctx context.Context, id core.DatasetID) error
}
