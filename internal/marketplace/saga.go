package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/listing_marketplace/internal/journal"
)

// workflow tracks one run of a multi-step operation. Steps execute strictly in
// order and are never retried; the first failure ends the run and leaves the
// checkpoint as the record of what reached the ledger.
type workflow struct {
	c       *Controller
	op      string
	id      string
	signer  string
	started time.Time
	cp      Checkpoint
}

func (c *Controller) begin(ctx context.Context, op, signer string) *workflow {
	w := &workflow{
		c:       c,
		op:      op,
		id:      uuid.NewString(),
		signer:  signer,
		started: time.Now().UTC(),
	}

	if c.journal != nil {
		err := c.journal.Begin(ctx, journal.Run{
			ID:        w.id,
			Op:        op,
			Signer:    signer,
			Stage:     StageUninitialized.String(),
			Status:    journal.StatusRunning,
			StartedAt: w.started,
		})
		if err != nil {
			c.log.WithError(err).WithField("run_id", w.id).Warn("journal begin failed")
		}
	}

	c.log.WithField("run_id", w.id).WithField("op", op).WithField("signer", signer).Debug("workflow started")
	return w
}

// stepKind lets a step fail under a kind other than the step's default.
type stepKind struct {
	kind error
	err  error
}

func (k *stepKind) Error() string { return k.err.Error() }
func (k *stepKind) Unwrap() error { return k.err }

// step runs fn as the named step. A failure is returned as a *WorkflowError of
// the given kind unless fn returned a *stepKind.
func (w *workflow) step(ctx context.Context, name string, kind error, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	var sk *stepKind
	if errors.As(err, &sk) {
		kind, err = sk.kind, sk.err
	}

	result := "ok"
	rec := journal.Step{Name: name, Status: journal.StepSucceeded, Duration: elapsed, At: start.UTC()}
	if err != nil {
		result = "error"
		rec.Status = journal.StepFailed
		rec.Error = err.Error()
	}
	w.c.metrics.ObserveStep(w.op, name, result, elapsed)
	w.record(ctx, rec)

	entry := w.c.log.WithField("run_id", w.id).WithField("op", w.op).WithField("step", name)
	if err != nil {
		entry.WithError(err).Warn("workflow step failed")
		return &WorkflowError{
			Op:         w.op,
			Step:       name,
			RunID:      w.id,
			Kind:       kind,
			Checkpoint: w.cp,
			Err:        err,
		}
	}
	entry.WithField("elapsed", elapsed).Debug("workflow step done")
	return nil
}

// skip records a step that did not need to run.
func (w *workflow) skip(ctx context.Context, name string) {
	w.record(ctx, journal.Step{Name: name, Status: journal.StepSkipped, At: time.Now().UTC()})
}

func (w *workflow) record(ctx context.Context, rec journal.Step) {
	if w.c.journal == nil {
		return
	}
	if err := w.c.journal.RecordStep(ctx, w.id, rec); err != nil {
		w.c.log.WithError(err).WithField("run_id", w.id).Warn("journal step record failed")
	}
}

// finish closes the run and returns err unchanged.
func (w *workflow) finish(ctx context.Context, err error) error {
	status := journal.StatusSucceeded
	result := "ok"
	msg := ""
	if err != nil {
		status = journal.StatusFailed
		result = KindName(KindOf(err))
		msg = err.Error()
	}
	w.c.metrics.RecordRun(w.op, result)

	if w.c.journal != nil {
		// The caller's context may already be cancelled; the outcome is still
		// worth recording.
		jctx := context.WithoutCancel(ctx)
		ferr := w.c.journal.Finish(jctx, w.id, journal.Outcome{
			Status:     status,
			Stage:      w.cp.Stage.String(),
			AppID:      uint64(w.cp.AppID),
			AssetID:    uint64(w.cp.AssetID),
			Error:      msg,
			FinishedAt: time.Now().UTC(),
		})
		if ferr != nil {
			w.c.log.WithError(ferr).WithField("run_id", w.id).Warn("journal finish failed")
		}
	}

	entry := w.c.log.WithField("run_id", w.id).WithField("op", w.op).WithField("stage", w.cp.Stage.String())
	var wfErr *WorkflowError
	switch {
	case err == nil:
		entry.WithField("elapsed", time.Since(w.started)).Info("workflow completed")
	case errors.As(err, &wfErr) && wfErr.Checkpoint.Stage.IsPartial():
		entry.WithError(err).WithField("app_id", uint64(w.cp.AppID)).Error(w.cp.Stage.Describe())
	default:
		entry.WithError(err).Warn("workflow failed")
	}
	return err
}

// fail ends the run on an error raised outside a step, such as opening the
// session.
func (w *workflow) fail(ctx context.Context, name string, kind error, err error) error {
	w.record(ctx, journal.Step{Name: name, Status: journal.StepFailed, Error: err.Error(), At: time.Now().UTC()})
	return w.finish(ctx, &WorkflowError{
		Op:         w.op,
		Step:       name,
		RunID:      w.id,
		Kind:       kind,
		Checkpoint: w.cp,
		Err:        err,
	})
}
