// Package journal records the progress of listing workflow runs. The ledger is
// the source of truth for listings; the journal only tells operators which
// steps of a run reached the ledger.
package journal

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Status is the state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Run is one execution of a controller operation.
type Run struct {
	ID         string     `json:"id" db:"id"`
	Op         string     `json:"op" db:"op"`
	Signer     string     `json:"signer" db:"signer"`
	AppID      uint64     `json:"app_id" db:"app_id"`
	AssetID    uint64     `json:"asset_id" db:"asset_id"`
	Stage      string     `json:"stage" db:"stage"`
	Status     Status     `json:"status" db:"status"`
	Error      string     `json:"error,omitempty" db:"error"`
	Steps      []Step     `json:"steps" db:"-"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Step is a recorded workflow step.
type Step struct {
	Name     string        `json:"name" db:"name"`
	Status   StepStatus    `json:"status" db:"status"`
	Error    string        `json:"error,omitempty" db:"error"`
	Duration time.Duration `json:"duration" db:"duration_ns"`
	At       time.Time     `json:"at" db:"at"`
}

// Outcome closes a run.
type Outcome struct {
	Status     Status
	Stage      string
	AppID      uint64
	AssetID    uint64
	Error      string
	FinishedAt time.Time
}

// Recorder is the write side used by the workflow controller.
type Recorder interface {
	Begin(ctx context.Context, run Run) error
	RecordStep(ctx context.Context, runID string, step Step) error
	Finish(ctx context.Context, runID string, out Outcome) error
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	Get(ctx context.Context, id string) (Run, error)
	// List returns the most recent runs first. A non-positive limit uses
	// DefaultListLimit.
	List(ctx context.Context, limit int) ([]Run, error)
}

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func (o Outcome) apply(run *Run) {
	run.Status = o.Status
	run.Stage = o.Stage
	run.AppID = o.AppID
	run.AssetID = o.AssetID
	run.Error = o.Error
	finished := o.FinishedAt
	run.FinishedAt = &finished
}
