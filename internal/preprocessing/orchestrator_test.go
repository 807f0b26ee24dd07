package preprocessing

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goprep/adapters/execsvc"
	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExecutionService struct {
	mock.Mock
	serviceProgress []int
}

func (m *MockExecutionService) Preprocess(ctx context.Context, req preprocess.WireRequest, datasets []dataset.Handle, progress ports.ProgressFunc) (preprocess.Result, error) {
	args := m.Called(ctx, req, datasets)
	for _, p := range m.serviceProgress {
		progress(p)
	}
	if fn, ok := args.Get(0).(func() preprocess.Result); ok {
		return fn(), args.Error(1)
	}
	result, _ := args.Get(0).(preprocess.Result)
	return result, args.Error(1)
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (r *progressRecorder) record(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, p)
}

func (r *progressRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

func kfoldSnapshot() preprocess.Snapshot {
	cfg := preprocess.DefaultConfig()
	cfg.EncodingMethod = preprocess.EncodingKFold
	cfg.TargetColumn = "y"
	return preprocess.Snapshot{Config: cfg}
}

func TestSubmitKFoldWithTarget(t *testing.T) {
	exec := &MockExecutionService{serviceProgress: []int{0, 50, 30, 100}}
	datasets := []dataset.Handle{dataset.NewHandle("/uploads/A")}
	want := preprocess.WireRequest{
		MissingStrategy: preprocess.MissingMean,
		Scaling:         true,
		Encoding:        preprocess.EncodingKFold,
		TargetColumn:    "y",
	}
	exec.On("Preprocess", mock.Anything, want, datasets).
		Return(preprocess.Result{"A": "A_preprocessed.csv"}, nil).Once()

	rec := &progressRecorder{}
	result, err := NewOrchestrator(exec).Submit(context.Background(), datasets, kfoldSnapshot(), rec.record)
	require.NoError(t, err)
	assert.Equal(t, preprocess.Result{"A": core.ArtifactRef("A_preprocessed.csv")}, result)

	values := rec.snapshot()
	require.NotEmpty(t, values)
	assert.Equal(t, 10, values[0])
	assert.Equal(t, 100, values[len(values)-1])
	assert.IsNonDecreasing(t, values)
	exec.AssertExpectations(t)
}

func TestSubmitValidationFailsWithoutCallingService(t *testing.T) {
	exec := &MockExecutionService{}
	snap := kfoldSnapshot()
	snap.Config.TargetColumn = ""

	rec := &progressRecorder{}
	result, err := NewOrchestrator(exec).Submit(context.Background(), oneDataset, snap, rec.record)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, errors.ErrMissingTargetColumn))
	assert.Empty(t, rec.snapshot())
	exec.AssertNotCalled(t, "Preprocess", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitPrefersServiceMessage(t *testing.T) {
	exec := &MockExecutionService{}
	svcErr := &ports.ServiceError{Service: "preprocess", StatusCode: 400, Message: "Target column 'y' not found in B.csv"}
	exec.On("Preprocess", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.ExternalServiceError("preprocess", svcErr)).Once()

	rec := &progressRecorder{}
	result, err := NewOrchestrator(exec).Submit(context.Background(), oneDataset, kfoldSnapshot(), rec.record)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOrchestration))
	assert.Equal(t, "Preprocessing failed: Target column 'y' not found in B.csv.", errors.Message(err))
	assert.NotContains(t, rec.snapshot(), 100)
}

func TestSubmitFallsBackToTransportMessage(t *testing.T) {
	exec := &MockExecutionService{}
	exec.On("Preprocess", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, stderrors.New("dial tcp 127.0.0.1:5000: connection refused")).Once()

	_, err := NewOrchestrator(exec).Submit(context.Background(), oneDataset, kfoldSnapshot(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeOrchestration, errors.GetCode(err))
	assert.Equal(t, "Preprocessing failed: dial tcp 127.0.0.1:5000: connection refused.", errors.Message(err))
}

func TestSubmitRejectsMismatchedResultKeys(t *testing.T) {
	datasets := []dataset.Handle{dataset.NewHandle("/u/A.csv"), dataset.NewHandle("/u/B.csv")}
	cases := map[string]preprocess.Result{
		"missing": {"A.csv": "a"},
		"extra":   {"A.csv": "a", "B.csv": "b", "C.csv": "c"},
		"renamed": {"A.csv": "a", "b.csv": "b"},
	}
	for name, returned := range cases {
		t.Run(name, func(t *testing.T) {
			exec := &MockExecutionService{}
			exec.On("Preprocess", mock.Anything, mock.Anything, mock.Anything).Return(returned, nil).Once()

			rec := &progressRecorder{}
			result, err := NewOrchestrator(exec).Submit(context.Background(), datasets, kfoldSnapshot(), rec.record)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, errors.ErrOrchestration))
			assert.NotContains(t, rec.snapshot(), 100)
		})
	}
}

func TestSubmitResultKeysEqualInputKeys(t *testing.T) {
	datasets := []dataset.Handle{dataset.NewHandle("/u/A.csv"), dataset.NewHandle("/u/B.xlsx"), dataset.NewHandle("/u/C.csv")}
	exec := &MockExecutionService{}
	exec.On("Preprocess", mock.Anything, mock.Anything, datasets).
		Return(preprocess.Result{"A.csv": "A_p.csv", "B.xlsx": "B_p.csv", "C.csv": "C_p.csv"}, nil).Once()

	result, err := NewOrchestrator(exec).Submit(context.Background(), datasets, kfoldSnapshot(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, dataset.HandleIDs(datasets), result.SortedIDs())
}

func TestSubmitSingleInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	exec := &MockExecutionService{}
	exec.On("Preprocess", mock.Anything, mock.Anything, mock.Anything).
		Return(func() preprocess.Result {
			close(started)
			<-release
			return preprocess.Result{"A.csv": "a"}
		}, nil).Once()

	o := NewOrchestrator(exec)
	datasets := []dataset.Handle{dataset.NewHandle("/u/A.csv")}

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), datasets, kfoldSnapshot(), nil)
		firstDone <- err
	}()
	<-started
	assert.True(t, o.InFlight())

	_, err := o.Submit(context.Background(), datasets, kfoldSnapshot(), nil)
	assert.True(t, errors.Is(err, errors.ErrSubmissionInProgress))

	close(release)
	require.NoError(t, <-firstDone)
	assert.Eventually(t, func() bool { return !o.InFlight() }, time.Second, 5*time.Millisecond)
}

func TestSubmitCallerAbandons(t *testing.T) {
	release := make(chan struct{})
	exec := &MockExecutionService{}
	exec.On("Preprocess", mock.Anything, mock.Anything, mock.Anything).
		Return(func() preprocess.Result {
			<-release
			return preprocess.Result{"A.csv": "a"}
		}, nil).Once()

	o := NewOrchestrator(exec)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Submit(ctx, []dataset.Handle{dataset.NewHandle("/u/A.csv")}, kfoldSnapshot(), nil)
		errCh <- err
	}()

	assert.Eventually(t, o.InFlight, time.Second, 5*time.Millisecond)
	cancel()
	err := <-errCh
	assert.True(t, errors.Is(err, errors.ErrOrchestration))
	assert.True(t, errors.Is(err, context.Canceled))

	// the slot is held until the service call returns
	assert.True(t, o.InFlight())
	close(release)
	assert.Eventually(t, func() bool { return !o.InFlight() }, time.Second, 5*time.Millisecond)
}

func TestBuildWireRequest(t *testing.T) {
	cfg := preprocess.Config{
		MissingStrategy: preprocess.MissingMedian,
		ScalingEnabled:  true,
		ScalingColumns:  []string{"x", "z"},
		EncodingMethod:  preprocess.EncodingLabel,
		EncodingColumns: []string{"c1", "c2"},
		TargetColumn:    "y",
	}

	req := BuildWireRequest(preprocess.Snapshot{Config: cfg})
	assert.Empty(t, req.ScalingColumns)
	assert.Empty(t, req.EncodingColumns)
	assert.Equal(t, "y", req.TargetColumn, "target is always sent")

	req = BuildWireRequest(preprocess.Snapshot{Config: cfg, Modes: preprocess.SubsetModes{Scaling: true, Encoding: true}})
	assert.Equal(t, "x,z", req.ScalingColumns)
	assert.Equal(t, "c1,c2", req.EncodingColumns)
	assert.Equal(t, preprocess.MissingMedian, req.MissingStrategy)
	assert.Equal(t, preprocess.EncodingLabel, req.Encoding)
	assert.True(t, req.Scaling)
}

func TestProgressGuard(t *testing.T) {
	rec := &progressRecorder{}
	g := newProgressGuard(rec.record)
	g.report(10)
	g.report(5)
	g.service(0)
	g.service(50)
	g.report(250)
	g.report(100)
	g.close()
	g.report(100)
	assert.Equal(t, []int{10, 52, 100}, rec.snapshot())
}

func TestSubmitRemoteFailureKeepsCause(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"non-JSON body", http.StatusOK, "<html>", "Preprocessing failed: response is not valid JSON."},
		{"missing preprocessed_file", http.StatusOK, `{"A.csv":{"other":"x"}}`, `Preprocessing failed: entry "A.csv" has no preprocessed_file.`},
		{"empty error status", http.StatusServiceUnavailable, "", "Preprocessing failed: preprocess returned 503."},
		{"service message", http.StatusBadRequest, `{"error":"Target column 'y' not found in A.csv"}`, "Preprocessing failed: Target column 'y' not found in A.csv."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			path := filepath.Join(t.TempDir(), "A.csv")
			require.NoError(t, os.WriteFile(path, []byte("x,y\n1,2\n"), 0o644))

			client := execsvc.NewClient(srv.URL, 5*time.Second)
			_, err := NewOrchestrator(client).Submit(context.Background(), []dataset.Handle{dataset.NewHandle(path)}, kfoldSnapshot(), nil)
			require.Error(t, err)
			assert.Equal(t, errors.CodeOrchestration, errors.GetCode(err))
			assert.Equal(t, tc.want, errors.Message(err))
		})
	}
}
