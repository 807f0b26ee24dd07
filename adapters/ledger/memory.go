package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"goprep/domain/core"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"
)

// MemoryLedger keeps submissions in process memory
type MemoryLedger struct {
	mu          sync.RWMutex
	submissions map[core.SubmissionID]*preprocess.Submission
	now         func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		submissions: make(map[core.SubmissionID]*preprocess.Submission),
		now:         time.Now,
	}
}

var _ ports.SubmissionLedger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Create(ctx context.Context, sub *preprocess.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.submissions[sub.ID]; exists {
		return errors.InvalidInput("submission " + sub.ID.String() + " already recorded")
	}
	l.submissions[sub.ID] = copySubmission(sub)
	return nil
}

func (l *MemoryLedger) MarkSucceeded(ctx context.Context, id core.SubmissionID, result preprocess.Result) error {
	return l.complete(id, func(s *preprocess.Submission) {
		s.Status = preprocess.StatusSucceeded
		s.Result = copyResult(result)
	})
}

func (l *MemoryLedger) MarkFailed(ctx context.Context, id core.SubmissionID, message string) error {
	return l.complete(id, func(s *preprocess.Submission) {
		s.Status = preprocess.StatusFailed
		s.Error = message
	})
}

func (l *MemoryLedger) complete(id core.SubmissionID, apply func(*preprocess.Submission)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.submissions[id]
	if !ok {
		return errors.NotFound("submission " + id.String())
	}
	apply(s)
	now := l.now().UTC()
	s.CompletedAt = &now
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, id core.SubmissionID) (*preprocess.Submission, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.submissions[id]
	if !ok {
		return nil, errors.NotFound("submission " + id.String())
	}
	return copySubmission(s), nil
}

// List returns the most recent submissions first. limit <= 0 means all.
func (l *MemoryLedger) List(ctx context.Context, limit int) ([]*preprocess.Submission, error) {
	l.mu.RLock()
	out := make([]*preprocess.Submission, 0, len(l.submissions))
	for _, s := range l.submissions {
		out = append(out, copySubmission(s))
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copySubmission(s *preprocess.Submission) *preprocess.Submission {
	c := *s
	c.Snapshot.Config = s.Snapshot.Config.Clone()
	c.DatasetIDs = append([]core.DatasetID(nil), s.DatasetIDs...)
	c.Result = copyResult(s.Result)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyResult(r preprocess.Result) preprocess.Result {
	if r == nil {
		return nil
	}
	out := make(preprocess.Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
