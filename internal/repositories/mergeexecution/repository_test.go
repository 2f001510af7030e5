package mergeexecution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(conn, "postgres"), logger), logger), mock
}

func executionRows(id, survivor, source string, executedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(
		id, "ses-1", survivor, source,
		[]byte(`[{"field_name":"legal_name","chosen_source":"survivor"}]`),
		[]byte(`[]`),
		[]byte(`[]`),
		[]byte(`{"contact":2}`),
		1, "steward@example.com", executedAt,
	)
}

func TestInsert(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO merge_executions").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(context.Background(), models.MergeExecutionRecord{
		ID:               "mex-1",
		SessionID:        "ses-1",
		SurvivorVendorID: "vnd-001",
		SourceVendorID:   "vnd-003",
		Actor:            "steward@example.com",
		ExecutedAt:       time.Now().UTC(),
	}))

	mock.ExpectExec("INSERT INTO merge_executions").WillReturnError(sql.ErrConnDone)
	err := repo.Insert(context.Background(), models.MergeExecutionRecord{ID: "mex-2"})
	assert.Equal(t, ferrors.KindStoreFailure, ferrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newRepo(t)
	executedAt := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("FROM merge_executions WHERE id = \\$1").
		WithArgs("mex-1").
		WillReturnRows(executionRows("mex-1", "vnd-001", "vnd-003", executedAt))
	record, err := repo.Get(context.Background(), "mex-1")
	require.NoError(t, err)
	assert.Equal(t, "vnd-001", record.SurvivorVendorID)
	assert.Equal(t, "vnd-003", record.SourceVendorID)
	require.Len(t, record.FieldDecisions, 1)
	assert.Equal(t, models.FieldLegalName, record.FieldDecisions[0].FieldName)
	assert.Equal(t, 2, record.ReassignedEntities[models.EntityKind("contact")])
	assert.Equal(t, 1, record.ReassignedKeys)
	assert.Equal(t, executedAt, record.ExecutedAt)

	mock.ExpectQuery("FROM merge_executions").WithArgs("mex-404").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "mex-404")
	assert.Equal(t, ferrors.KindExecutionNotFound, ferrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByVendor(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now().UTC()

	rows := executionRows("mex-2", "vnd-001", "vnd-004", now)
	rows.AddRow("mex-1", "ses-0", "vnd-001", "vnd-003", []byte(`[]`), []byte(`[]`), []byte(`[]`), []byte(`{}`), 0, "steward@example.com", now.Add(-time.Hour))
	mock.ExpectQuery("WHERE \\(survivor_vendor_id = \\$1 OR source_vendor_id = \\$2\\) ORDER BY executed_at DESC").
		WithArgs("vnd-001", "vnd-001").
		WillReturnRows(rows)

	records, err := repo.ListByVendor(context.Background(), "vnd-001")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "mex-2", records[0].ID)
	assert.Equal(t, "mex-1", records[1].ID)

	mock.ExpectQuery("FROM merge_executions").WillReturnRows(sqlmock.NewRows(columns))
	records, err = repo.ListByVendor(context.Background(), "vnd-999")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
