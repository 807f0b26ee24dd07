package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"goprep/adapters/ledger"
	"goprep/adapters/localexec"
	"goprep/adapters/tabular"
	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	storage "goprep/internal/dataset"
	"goprep/internal/errors"
	"goprep/internal/metrics"
	"goprep/internal/preprocessing"
	"goprep/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainCSV = "x,color,y\n1,red,0\n,blue,1\n3,red,1\n"

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.SubmissionEvent
}

func (r *recordingPublisher) Publish(event ports.SubmissionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if len(out) == 0 || out[len(out)-1] != e.Type {
			out = append(out, e.Type)
		}
	}
	return out
}

// blockingExec holds every call until release is closed
type blockingExec struct {
	release chan struct{}
	result  preprocess.Result
	err     error
}

func (b *blockingExec) Preprocess(ctx context.Context, req preprocess.WireRequest, datasets []dataset.Handle, progress ports.ProgressFunc) (preprocess.Result, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.result, b.err
}

func (b *blockingExec) DownloadURL(ref core.ArtifactRef) string {
	return "http://exec.test/download-preprocessed/" + ref.String()
}

type fixture struct {
	service *PreprocessService
	ledger  *ledger.MemoryLedger
	events  *recordingPublisher
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, exec ports.ExecutionService, downloads ports.DownloadResolver) *fixture {
	t.Helper()
	uploads := t.TempDir()
	f := &fixture{
		ledger:  ledger.NewMemoryLedger(),
		events:  &recordingPublisher{},
		metrics: metrics.New(),
	}
	f.service = NewPreprocessService(ServiceDeps{
		Exec:      exec,
		Downloads: downloads,
		Summaries: tabular.NewSummaryProvider(tabular.DefaultInferenceConfig()),
		Ledger:    f.ledger,
		Events:    f.events,
		Metrics:   f.metrics,
		Stores: func(sessionID string) ports.DatasetStore {
			return storage.NewLocalFileStorage(uploads+"/"+sessionID, 1<<20)
		},
		Policy:  preprocessing.ApplyOnce,
		Timeout: 5 * time.Second,
	})
	return f
}

func newLocalFixture(t *testing.T) *fixture {
	engine := localexec.NewEngine(localexec.Config{
		OutputDir:   t.TempDir(),
		Workers:     2,
		KFoldSplits: 2,
		Inference:   tabular.DefaultInferenceConfig(),
	})
	return newFixture(t, engine, engine)
}

func TestUploadSeedsConfiguration(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()

	handle, err := f.service.Upload(ctx, "s1", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)
	assert.Equal(t, core.DatasetID("train.csv"), handle.ID)

	view, err := f.service.Columns(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "color", "y"}, view.Classification.Universe)
	assert.Equal(t, []string{"x", "y"}, view.Classification.Numeric)
	assert.Equal(t, []string{"color"}, view.Classification.Categorical)
	require.Len(t, view.Datasets, 1)

	snap := f.service.Config("s1")
	assert.Equal(t, preprocess.MissingMedian, snap.Config.MissingStrategy)
	assert.Equal(t, "y", snap.Config.TargetColumn)
	assert.Equal(t, []string{"x", "y"}, snap.Config.ScalingColumns)
	assert.Equal(t, []string{"color"}, snap.Config.EncodingColumns)

	// other sessions are untouched
	other, err := f.service.Columns(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other.Datasets)
	assert.Empty(t, f.service.Config("s2").Config.TargetColumn)
}

func TestSubmitRunsAndRecords(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()
	_, err := f.service.Upload(ctx, "", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)

	sub, err := f.service.Submit(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, preprocess.StatusRunning, sub.Status)
	assert.Equal(t, []core.DatasetID{"train.csv"}, sub.DatasetIDs)
	f.service.Wait()

	stored, err := f.service.Submission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, preprocess.StatusSucceeded, stored.Status)
	require.Len(t, stored.Result, 1)
	ref := stored.Result["train.csv"].String()
	assert.Regexp(t, `^train_[0-9a-f]{12}_preprocessed\.csv$`, ref)
	assert.NotNil(t, stored.CompletedAt)

	assert.Equal(t, []string{
		ports.EventSubmissionStarted,
		ports.EventSubmissionProgress,
		ports.EventSubmissionSucceeded,
	}, f.events.types())
	assert.Equal(t, "/download/"+ref, f.service.DownloadURL(stored.Result["train.csv"]))

	report, err := f.service.Report(ctx, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, report.Markdown, "| Missing values | median |")
	assert.Contains(t, report.Markdown, "["+ref+"](/download/"+ref+")")
	assert.Contains(t, report.HTML, "<table>")
	assert.Contains(t, report.HTML, `href="/download/`+ref+`"`)

	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.Registry(), "goprep_submissions_total"))
}

func TestSubmitRejectsInvalidConfiguration(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "")
	assert.ErrorIs(t, err, errors.ErrNoDatasets)

	_, err = f.service.Upload(ctx, "", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)
	subset := true
	_, err = f.service.UpdateConfig("", ConfigPatch{ScalingSubset: &subset, ScalingColumns: &[]string{}})
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, "")
	assert.ErrorIs(t, err, errors.ErrEmptyScalingSubset)
	assert.ErrorIs(t, f.service.Validate(ctx, ""), errors.ErrEmptyScalingSubset)

	subs, err := f.service.Submissions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Empty(t, f.events.types())
}

func TestSubmitSingleInFlight(t *testing.T) {
	exec := &blockingExec{release: make(chan struct{}), result: preprocess.Result{"train.csv": "out.csv"}}
	f := newFixture(t, exec, exec)
	ctx := context.Background()
	_, err := f.service.Upload(ctx, "", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)

	first, err := f.service.Submit(ctx, "")
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, "")
	assert.ErrorIs(t, err, errors.ErrSubmissionInProgress)

	close(exec.release)
	f.service.Wait()

	stored, err := f.service.Submission(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, preprocess.StatusSucceeded, stored.Status)

	second, err := f.service.Submit(ctx, "")
	require.NoError(t, err)
	f.service.Wait()
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSubmitRecordsFailure(t *testing.T) {
	exec := &blockingExec{release: make(chan struct{}), err: &ports.ServiceError{StatusCode: 500, Message: "disk full."}}
	close(exec.release)
	f := newFixture(t, exec, exec)
	ctx := context.Background()
	_, err := f.service.Upload(ctx, "", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)

	sub, err := f.service.Submit(ctx, "")
	require.NoError(t, err)
	f.service.Wait()

	stored, err := f.service.Submission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, preprocess.StatusFailed, stored.Status)
	assert.Equal(t, "Preprocessing failed: disk full.", stored.Error)
	assert.Empty(t, stored.Result)

	types := f.events.types()
	assert.Equal(t, ports.EventSubmissionFailed, types[len(types)-1])

	report, err := f.service.Report(ctx, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, report.Markdown, "Status: **failed**")
	assert.Contains(t, report.Markdown, "- train.csv")
}

func TestUpdateConfigIsAllOrNothing(t *testing.T) {
	f := newLocalFixture(t)
	before := f.service.Config("")

	bad := "zscore"
	target := "label"
	_, err := f.service.UpdateConfig("", ConfigPatch{EncodingMethod: &bad, TargetColumn: &target})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Equal(t, before, f.service.Config(""))

	method := "kfold"
	snap, err := f.service.UpdateConfig("", ConfigPatch{EncodingMethod: &method, TargetColumn: &target})
	require.NoError(t, err)
	assert.Equal(t, preprocess.EncodingKFold, snap.Config.EncodingMethod)
	assert.Equal(t, "label", snap.Config.TargetColumn)
}

func TestToggleColumn(t *testing.T) {
	f := newLocalFixture(t)

	snap, err := f.service.ToggleColumn("", ColumnKindScaling, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, snap.Config.ScalingColumns)

	snap, err = f.service.ToggleColumn("", ColumnKindScaling, "x")
	require.NoError(t, err)
	assert.Empty(t, snap.Config.ScalingColumns)

	_, err = f.service.ToggleColumn("", "imputation", "x")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRemoveDatasetRefreshesColumns(t *testing.T) {
	f := newLocalFixture(t)
	ctx := context.Background()
	_, err := f.service.Upload(ctx, "", strings.NewReader(trainCSV), "train.csv")
	require.NoError(t, err)
	_, err = f.service.Upload(ctx, "", strings.NewReader("a,b\n1,2\n"), "extra.csv")
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveDataset(ctx, "", "extra.csv"))
	view, err := f.service.Columns(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "color", "y"}, view.Classification.Universe)
}
