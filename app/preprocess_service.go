package app

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/internal/metrics"
	"goprep/internal/preprocessing"
	"goprep/internal/schema"
	"goprep/ports"
)

// StoreFactory returns the upload store of a session
type StoreFactory func(sessionID string) ports.DatasetStore

// PreprocessService drives preprocessing sessions: uploads, column roles,
// configuration, validation and submission.
type PreprocessService struct {
	exec      ports.ExecutionService
	downloads ports.DownloadResolver
	summaries ports.SummaryProvider
	ledger    ports.SubmissionLedger
	events    ports.EventPublisher
	metrics   *metrics.Metrics
	stores    StoreFactory
	policy    preprocessing.DefaultingPolicy
	timeout   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	running  sync.WaitGroup
}

// ServiceDeps groups the collaborators of PreprocessService
type ServiceDeps struct {
	Exec      ports.ExecutionService
	Downloads ports.DownloadResolver
	Summaries ports.SummaryProvider
	Ledger    ports.SubmissionLedger
	Events    ports.EventPublisher
	Metrics   *metrics.Metrics
	Stores    StoreFactory
	Policy    preprocessing.DefaultingPolicy
	Timeout   time.Duration
}

// NewPreprocessService creates the service
func NewPreprocessService(deps ServiceDeps) *PreprocessService {
	if deps.Timeout <= 0 {
		deps.Timeout = 10 * time.Minute
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &PreprocessService{
		exec:      deps.Exec,
		downloads: deps.Downloads,
		summaries: deps.Summaries,
		ledger:    deps.Ledger,
		events:    deps.Events,
		metrics:   deps.Metrics,
		stores:    deps.Stores,
		policy:    deps.Policy,
		timeout:   deps.Timeout,
		sessions:  make(map[string]*Session),
	}
}

// Session returns the named session, creating it on first use
func (s *PreprocessService) Session(id string) *Session {
	if id == "" {
		id = DefaultSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			ID:             id,
			State:          preprocessing.NewState(s.policy),
			store:          s.stores(id),
			orchestrator:   preprocessing.NewOrchestrator(s.exec),
			classification: schema.Empty(),
		}
		s.sessions[id] = sess
	}
	return sess
}

// Upload stores a dataset and refreshes the session's summaries
func (s *PreprocessService) Upload(ctx context.Context, sessionID string, r io.Reader, filename string) (dataset.Handle, error) {
	sess := s.Session(sessionID)
	handle, err := sess.store.Store(ctx, r, filename)
	if err != nil {
		return dataset.Handle{}, err
	}
	s.metrics.DatasetUploaded()
	log.Printf("[PreprocessService] Session %s: stored %s (%d bytes)", sess.ID, handle.ID, handle.Size)

	if err := sess.refresh(ctx, s.summaries); err != nil {
		return handle, errors.Wrap(err, "failed to summarize datasets")
	}
	return handle, nil
}

// RemoveDataset deletes an uploaded dataset and refreshes the summaries
func (s *PreprocessService) RemoveDataset(ctx context.Context, sessionID string, id core.DatasetID) error {
	sess := s.Session(sessionID)
	if err := sess.store.Remove(ctx, id); err != nil {
		return err
	}
	return sess.refresh(ctx, s.summaries)
}

// Columns returns the datasets, summaries and derived column roles
func (s *PreprocessService) Columns(ctx context.Context, sessionID string) (ColumnsView, error) {
	sess := s.Session(sessionID)
	handles, err := sess.Datasets(ctx)
	if err != nil {
		return ColumnsView{}, err
	}
	return sess.columns(handles), nil
}

// Config returns the session's current configuration
func (s *PreprocessService) Config(sessionID string) preprocess.Snapshot {
	return s.Session(sessionID).State.Snapshot()
}

// UpdateConfig applies a partial update. Enum values are checked before
// anything changes, so an invalid patch leaves the configuration untouched.
func (s *PreprocessService) UpdateConfig(sessionID string, patch ConfigPatch) (preprocess.Snapshot, error) {
	if err := patch.check(); err != nil {
		return preprocess.Snapshot{}, err
	}
	state := s.Session(sessionID).State
	patch.apply(state)
	return state.Snapshot(), nil
}

// ToggleColumn flips membership of column in the scaling or encoding subset
func (s *PreprocessService) ToggleColumn(sessionID, kind, column string) (preprocess.Snapshot, error) {
	state := s.Session(sessionID).State
	switch kind {
	case ColumnKindScaling:
		state.ToggleScalingColumn(column)
	case ColumnKindEncoding:
		state.ToggleEncodingColumn(column)
	default:
		return preprocess.Snapshot{}, errors.InvalidInput("column kind must be scaling or encoding")
	}
	return state.Snapshot(), nil
}

// ResetConfig restores the defaults and re-applies the current suggestions
func (s *PreprocessService) ResetConfig(ctx context.Context, sessionID string) (preprocess.Snapshot, error) {
	sess := s.Session(sessionID)
	sess.State.Reset()
	if err := sess.refresh(ctx, s.summaries); err != nil {
		return preprocess.Snapshot{}, err
	}
	return sess.State.Snapshot(), nil
}

// Validate runs the pre-flight checks on the current configuration
func (s *PreprocessService) Validate(ctx context.Context, sessionID string) error {
	sess := s.Session(sessionID)
	handles, err := sess.Datasets(ctx)
	if err != nil {
		return err
	}
	return preprocessing.ValidateSnapshot(sess.State.Snapshot(), handles)
}

// Submit validates the configuration and starts a submission in the
// background. Progress and the outcome are published as events and
// recorded in the ledger.
func (s *PreprocessService) Submit(ctx context.Context, sessionID string) (*preprocess.Submission, error) {
	sess := s.Session(sessionID)
	handles, err := sess.Datasets(ctx)
	if err != nil {
		return nil, err
	}
	snap := sess.State.Snapshot()

	if err := preprocessing.ValidateSnapshot(snap, handles); err != nil {
		s.metrics.SubmissionRejected(errors.GetCode(err))
		return nil, err
	}
	if sess.orchestrator.InFlight() || !sess.submitting.CompareAndSwap(false, true) {
		s.metrics.SubmissionRejected(errors.CodeSubmissionInProgress)
		return nil, errors.ErrSubmissionInProgress
	}

	sub := &preprocess.Submission{
		ID:         core.NewSubmissionID(),
		Snapshot:   snap,
		DatasetIDs: dataset.HandleIDs(handles),
		Status:     preprocess.StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.ledger.Create(ctx, sub); err != nil {
		sess.submitting.Store(false)
		return nil, errors.Wrap(err, "failed to record submission")
	}

	s.publish(sess.ID, sub.ID, ports.EventSubmissionStarted, 0, nil, "")
	s.metrics.SubmissionStarted()
	s.running.Add(1)
	go s.run(sess, sub, handles)
	return sub, nil
}

func (s *PreprocessService) run(sess *Session, sub *preprocess.Submission, handles []dataset.Handle) {
	defer s.running.Done()
	defer sess.submitting.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := sess.orchestrator.Submit(ctx, handles, sub.Snapshot, func(percent int) {
		s.publish(sess.ID, sub.ID, ports.EventSubmissionProgress, percent, nil, "")
	})
	elapsed := time.Since(sub.StartedAt)

	// the ledger update must not depend on the submission's own deadline
	ledgerCtx, ledgerCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ledgerCancel()

	if err != nil {
		message := errors.Message(err)
		log.Printf("[PreprocessService] Submission %s failed after %v: %v", sub.ID, elapsed.Round(time.Millisecond), err)
		if lerr := s.ledger.MarkFailed(ledgerCtx, sub.ID, message); lerr != nil {
			log.Printf("[PreprocessService] Failed to record failure of %s: %v", sub.ID, lerr)
		}
		s.metrics.SubmissionFinished(metrics.OutcomeFailed, elapsed)
		s.publish(sess.ID, sub.ID, ports.EventSubmissionFailed, 0, nil, message)
		return
	}

	log.Printf("[PreprocessService] Submission %s succeeded in %v", sub.ID, elapsed.Round(time.Millisecond))
	if lerr := s.ledger.MarkSucceeded(ledgerCtx, sub.ID, result); lerr != nil {
		log.Printf("[PreprocessService] Failed to record result of %s: %v", sub.ID, lerr)
	}
	s.metrics.SubmissionFinished(metrics.OutcomeSucceeded, elapsed)
	s.publish(sess.ID, sub.ID, ports.EventSubmissionSucceeded, 100, result, "")
}

func (s *PreprocessService) publish(sessionID string, id core.SubmissionID, eventType string, progress int, result preprocess.Result, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ports.SubmissionEvent{
		SessionID:    sessionID,
		SubmissionID: id,
		Type:         eventType,
		Progress:     progress,
		Result:       result,
		Error:        message,
		Timestamp:    time.Now(),
	})
}

// Wait blocks until every background submission has finished
func (s *PreprocessService) Wait() {
	s.running.Wait()
}

// Submission returns a recorded submission
func (s *PreprocessService) Submission(ctx context.Context, id core.SubmissionID) (*preprocess.Submission, error) {
	return s.ledger.Get(ctx, id)
}

// Submissions lists recorded submissions, newest first
func (s *PreprocessService) Submissions(ctx context.Context, limit int) ([]*preprocess.Submission, error) {
	return s.ledger.List(ctx, limit)
}

// DownloadURL resolves an artifact reference to a retrievable URL
func (s *PreprocessService) DownloadURL(ref core.ArtifactRef) string {
	return s.downloads.DownloadURL(ref)
}
