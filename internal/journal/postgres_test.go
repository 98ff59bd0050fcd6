package journal

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresBegin(t *testing.T) {
	store, mock := newMockStore(t)
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO workflow_runs").
		WithArgs("r1", "buy", "BUYER", int64(0), int64(0), "active", "running", "", started).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Begin(context.Background(), Run{ID: "r1", Op: "buy", Signer: "BUYER", Stage: "active", Status: StatusRunning, StartedAt: started})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStep(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 0, 0, 1, 0, time.UTC)

	mock.ExpectExec("INSERT INTO workflow_steps").
		WithArgs("r1", "buy", "failed", "rejected", int64(1500*time.Millisecond), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordStep(context.Background(), "r1", Step{Name: "buy", Status: StepFailed, Error: "rejected", Duration: 1500 * time.Millisecond, At: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinishUnknownRun(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE workflow_runs").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Finish(context.Background(), "missing", Outcome{Status: StatusSucceeded, FinishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLoadsSteps(t *testing.T) {
	store, mock := newMockStore(t)
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)

	mock.ExpectQuery("FROM workflow_runs").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "op", "signer", "app_id", "asset_id", "stage", "status", "error", "started_at", "finished_at"}).
			AddRow("r1", "create", "SELLER", int64(12), int64(11), "active", "succeeded", "", started, finished))
	mock.ExpectQuery("FROM workflow_steps").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "status", "error", "duration_ns", "at"}).
			AddRow("mint-asset", "succeeded", "", int64(1000), started).
			AddRow("deploy", "succeeded", "", int64(2000), started))

	run, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), run.AppID)
	assert.Equal(t, StatusSucceeded, run.Status)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, 2*time.Microsecond, run.Steps[1].Duration)
	require.NotNil(t, run.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM workflow_runs").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestPostgresListAppliesDefaultLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "op", "signer", "app_id", "asset_id", "stage", "status", "error", "started_at", "finished_at"}).
			AddRow("r2", "close", "SELLER", int64(12), int64(0), "closed", "succeeded", "", time.Now(), nil))

	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	id := "it-" + time.Now().UTC().Format("150405.000000000")
	require.NoError(t, store.Begin(ctx, Run{ID: id, Op: "close", Status: StatusRunning, StartedAt: time.Now().UTC()}))
	require.NoError(t, store.RecordStep(ctx, id, Step{Name: "delete", Status: StepSucceeded, At: time.Now().UTC()}))
	require.NoError(t, store.Finish(ctx, id, Outcome{Status: StatusSucceeded, Stage: "closed", FinishedAt: time.Now().UTC()}))

	run, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Len(t, run.Steps, 1)
}
