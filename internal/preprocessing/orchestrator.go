package preprocessing

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"
)

// Orchestrator submits a validated configuration to the execution service as
// one batch covering every dataset. At most one submission is in flight.
type Orchestrator struct {
	exec     ports.ExecutionService
	inFlight atomic.Bool
}

// NewOrchestrator creates an orchestrator over the given execution service
func NewOrchestrator(exec ports.ExecutionService) *Orchestrator {
	return &Orchestrator{exec: exec}
}

// InFlight reports whether a submission is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

type execOutcome struct {
	result preprocess.Result
	err    error
}

// Submit validates snap against datasets, sends a single batch request and
// returns one artifact reference per dataset. Validation errors are returned
// unchanged; every other failure is an orchestration error and no partial
// result is ever returned.
//
// If ctx is cancelled Submit returns immediately; the service call keeps
// running in the background until the transport gives up, and the in-flight
// slot stays taken until it does.
func (o *Orchestrator) Submit(ctx context.Context, datasets []dataset.Handle, snap preprocess.Snapshot, progress ports.ProgressFunc) (preprocess.Result, error) {
	if err := ValidateSnapshot(snap, datasets); err != nil {
		return nil, err
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, errors.ErrSubmissionInProgress
	}

	guard := newProgressGuard(progress)
	defer guard.close()
	guard.report(progressStarted)

	req := BuildWireRequest(snap)
	ids := dataset.HandleIDs(datasets)
	log.Printf("[Orchestrator] Submitting %d dataset(s): missing=%s scaling=%t encoding=%s target=%q",
		len(datasets), req.MissingStrategy, req.Scaling, req.Encoding, req.TargetColumn)

	done := make(chan execOutcome, 1)
	go func() {
		result, err := o.exec.Preprocess(ctx, req, datasets, guard.service)
		// release the slot before the caller can observe the outcome
		o.inFlight.Store(false)
		done <- execOutcome{result: result, err: err}
	}()

	var out execOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		log.Printf("[Orchestrator] Caller abandoned submission: %v", ctx.Err())
		return nil, errors.Orchestration(ctx.Err().Error(), ctx.Err())
	}

	if out.err != nil {
		detail := failureDetail(out.err)
		log.Printf("[Orchestrator] Submission failed: %v", out.err)
		return nil, errors.Orchestration(detail, out.err)
	}
	if !out.result.KeysMatch(ids) {
		log.Printf("[Orchestrator] Result keys %v do not match submitted datasets %v", out.result.SortedIDs(), ids)
		return nil, errors.Orchestration("the service returned results for a different set of datasets", nil)
	}

	guard.report(progressComplete)
	log.Printf("[Orchestrator] Submission succeeded for %d dataset(s)", len(out.result))
	return out.result, nil
}

// BuildWireRequest converts a snapshot into service parameters. Subset column
// lists are sent only while their subset mode is active; the target column
// is always sent.
func BuildWireRequest(snap preprocess.Snapshot) preprocess.WireRequest {
	cfg := snap.Config
	req := preprocess.WireRequest{
		MissingStrategy: cfg.MissingStrategy,
		Scaling:         cfg.ScalingEnabled,
		Encoding:        cfg.EncodingMethod,
		TargetColumn:    cfg.TargetColumn,
	}
	if snap.Modes.Scaling {
		req.ScalingColumns = strings.Join(cfg.ScalingColumns, preprocess.ColumnListSeparator)
	}
	if snap.Modes.Encoding {
		req.EncodingColumns = strings.Join(cfg.EncodingColumns, preprocess.ColumnListSeparator)
	}
	return req
}

// failureDetail picks the most specific message available: the service's own
// message, then the innermost cause below any AppError wrappers.
func failureDetail(err error) string {
	var svcErr *ports.ServiceError
	if errors.As(err, &svcErr) && strings.TrimSpace(svcErr.Message) != "" {
		return strings.TrimRight(strings.TrimSpace(svcErr.Message), ".")
	}
	detail := errors.Message(err)
	for cur := err; cur != nil; {
		appErr, ok := cur.(*errors.AppError)
		if !ok {
			detail = cur.Error()
			break
		}
		detail = appErr.Message
		cur = appErr.Cause
	}
	return strings.TrimRight(strings.TrimSpace(detail), ".")
}
