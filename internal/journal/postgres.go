package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/listing_marketplace/internal/journal/migrations"
)

// Postgres stores runs in PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an open database handle. The schema must already exist;
// see OpenPostgres.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to dsn and applies the journal schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("journal dsn not configured")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

// Close releases the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Begin(ctx context.Context, run Run) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO workflow_runs (id, op, signer, app_id, asset_id, stage, status, error, started_at)
		VALUES (:id, :op, :signer, :app_id, :asset_id, :stage, :status, :error, :started_at)
	`, run)
	return err
}

func (p *Postgres) RecordStep(ctx context.Context, runID string, step Step) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO workflow_steps (run_id, name, status, error, duration_ns, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, step.Name, string(step.Status), step.Error, int64(step.Duration), step.At)
	return err
}

func (p *Postgres) Finish(ctx context.Context, runID string, out Outcome) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $2, stage = $3, app_id = $4, asset_id = $5, error = $6, finished_at = $7
		WHERE id = $1
	`, runID, string(out.Status), out.Stage, int64(out.AppID), int64(out.AssetID), out.Error, out.FinishedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Run, error) {
	var run Run
	err := p.db.GetContext(ctx, &run, `
		SELECT id, op, signer, app_id, asset_id, stage, status, error, started_at, finished_at
		FROM workflow_runs
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	err = p.db.SelectContext(ctx, &run.Steps, `
		SELECT name, status, error, duration_ns, at
		FROM workflow_steps
		WHERE run_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// List returns runs without their steps.
func (p *Postgres) List(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := p.db.SelectContext(ctx, &runs, `
		SELECT id, op, signer, app_id, asset_id, stage, status, error, started_at, finished_at
		FROM workflow_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return runs, nil
}
