package localexec

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"goprep/adapters/tabular"
	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const serviceName = "local preprocessing"

// Config configures the local engine
type Config struct {
	OutputDir      string
	Workers        int
	KFoldSplits    int
	DownloadPrefix string // URL prefix the HTTP layer serves OutputDir under
	Inference      tabular.InferenceConfig
}

// Engine runs imputation, scaling and encoding in-process on local files.
// It stands in for the remote service and follows the same contract.
type Engine struct {
	config  Config
	batchID func() string
}

// NewEngine creates a local engine
func NewEngine(config Config) *Engine {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.KFoldSplits < 2 {
		config.KFoldSplits = 5
	}
	if config.DownloadPrefix == "" {
		config.DownloadPrefix = "/download/"
	}
	return &Engine{config: config, batchID: newBatchID}
}

var (
	_ ports.ExecutionService = (*Engine)(nil)
	_ ports.DownloadResolver = (*Engine)(nil)
)

// Preprocess transforms every dataset and writes one CSV per input into the
// output directory. The batch fails as a whole if any dataset fails.
func (e *Engine) Preprocess(ctx context.Context, req preprocess.WireRequest, datasets []dataset.Handle, progress ports.ProgressFunc) (preprocess.Result, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	names := artifactNames(e.batchID(), datasets)

	var (
		mu     sync.Mutex
		done   int
		result = make(preprocess.Result, len(datasets))
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, ds := range datasets {
		ds := ds
		name := names[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.processOne(req, ds, name); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			result[ds.ID] = core.ArtifactRef(name)
			done++
			if progress != nil {
				progress(done * 100 / len(datasets))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("[LocalExec] Preprocessed %d dataset(s) in %v", len(datasets), time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (e *Engine) processOne(req preprocess.WireRequest, ds dataset.Handle, artifact string) error {
	table, err := tabular.NewReader(ds.Path).Read()
	if err != nil {
		return serviceError(fmt.Sprintf("Could not read %s", ds.ID), err)
	}

	if req.Encoding.RequiresTarget() && table.ColumnIndex(req.TargetColumn) < 0 {
		return serviceError(fmt.Sprintf("Target column '%s' not found in %s", req.TargetColumn, ds.ID), nil)
	}

	p := newPipeline(table, e.config.Inference, req.TargetColumn)
	if err := p.impute(req.MissingStrategy); err != nil {
		return serviceError(fmt.Sprintf("Imputation failed for %s", ds.ID), err)
	}
	if req.Scaling {
		p.scale(preprocess.SplitColumnList(req.ScalingColumns))
	}
	if err := p.encode(req.Encoding, preprocess.SplitColumnList(req.EncodingColumns), e.config.KFoldSplits); err != nil {
		return serviceError(fmt.Sprintf("Encoding failed for %s", ds.ID), err)
	}

	if err := tabular.WriteCSV(filepath.Join(e.config.OutputDir, artifact), p.table); err != nil {
		return serviceError(fmt.Sprintf("Could not write output for %s", ds.ID), err)
	}
	return nil
}

// DownloadURL returns the path the HTTP layer serves the artifact from
func (e *Engine) DownloadURL(ref core.ArtifactRef) string {
	return e.config.DownloadPrefix + url.PathEscape(ref.String())
}

// ArtifactPath resolves a reference to a file inside the output directory.
// References that would escape it are rejected.
func (e *Engine) ArtifactPath(ref core.ArtifactRef) (string, error) {
	name := ref.String()
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.InvalidInput("invalid artifact reference")
	}
	path := filepath.Join(e.config.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", errors.NotFound("artifact " + name)
	}
	return path, nil
}

func checkRequest(req preprocess.WireRequest) error {
	if !req.MissingStrategy.Valid() {
		return serviceError(fmt.Sprintf("Unknown missing value strategy '%s'", req.MissingStrategy), nil)
	}
	if !req.Encoding.Valid() {
		return serviceError(fmt.Sprintf("Unknown encoding method '%s'", req.Encoding), nil)
	}
	if req.Encoding.RequiresTarget() && req.TargetColumn == "" {
		return serviceError("Target column is required for target encoding", nil)
	}
	return nil
}

// artifactNames derives "<stem>_<batch>_preprocessed.csv" per dataset,
// keeping the extension in the stem when two inputs would collide. The batch
// tag keeps runs from different sessions apart in the shared output directory.
func artifactNames(batch string, datasets []dataset.Handle) []string {
	counts := make(map[string]int, len(datasets))
	stems := make([]string, len(datasets))
	for i, ds := range datasets {
		id := ds.ID.String()
		stems[i] = strings.TrimSuffix(id, filepath.Ext(id))
		counts[stems[i]]++
	}
	names := make([]string, len(datasets))
	for i, ds := range datasets {
		stem := stems[i]
		if counts[stem] > 1 {
			stem = strings.ReplaceAll(ds.ID.String(), ".", "_")
		}
		names[i] = stem + "_" + batch + "_preprocessed.csv"
	}
	return names
}

func newBatchID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func serviceError(message string, cause error) error {
	return errors.ExternalServiceError(serviceName, &ports.ServiceError{
		Service:    serviceName,
		StatusCode: 400,
		Message:    message,
		Cause:      cause,
	})
}
