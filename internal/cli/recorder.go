package cli

import (
	"context"

	"github.com/R3E-Network/listing_marketplace/internal/journal"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

// StepCounts is the number of recorded steps a successful run of each
// operation takes. Escrow verification adds one to create; the bar grows.
var StepCounts = map[string]int{
	mp.OpCreate: 5,
	mp.OpBuy:    3,
	mp.OpClose:  1,
}

// ProgressRecorder drives a ProgressBar from workflow journal events and
// forwards every event to Next when set.
type ProgressRecorder struct {
	Bar  *ProgressBar
	Next journal.Recorder
}

// Begin implements journal.Recorder.
func (p *ProgressRecorder) Begin(ctx context.Context, run journal.Run) error {
	total, ok := StepCounts[run.Op]
	if !ok {
		total = 1
	}
	p.Bar.Reset(total, run.Op)
	if p.Next == nil {
		return nil
	}
	return p.Next.Begin(ctx, run)
}

// RecordStep implements journal.Recorder.
func (p *ProgressRecorder) RecordStep(ctx context.Context, runID string, step journal.Step) error {
	label := step.Name
	if step.Status != journal.StepSucceeded {
		label += " (" + string(step.Status) + ")"
	}
	p.Bar.Step(label)
	if p.Next == nil {
		return nil
	}
	return p.Next.RecordStep(ctx, runID, step)
}

// Finish implements journal.Recorder.
func (p *ProgressRecorder) Finish(ctx context.Context, runID string, out journal.Outcome) error {
	p.Bar.Finish(out.Status == journal.StatusSucceeded)
	if p.Next == nil {
		return nil
	}
	return p.Next.Finish(ctx, runID, out)
}
