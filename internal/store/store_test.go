package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(database.NewDatabaseInstance(sqlx.NewDb(conn, "postgres"), logger), logger), mock
}

func TestInTransactionCommits(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE vendor_source_keys SET vendor_id = \\$1").
		WithArgs("vnd-001", sqlmock.AnyArg(), "vnd-003").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	var moved int
	err := s.InTransaction(context.Background(), func(ctx context.Context) error {
		var err error
		moved, err = s.MoveSourceKeys(ctx, "vnd-003", "vnd-001")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransactionRollsBack(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE vendors").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.InTransaction(context.Background(), func(ctx context.Context) error {
		return s.ArchiveVendor(ctx, "vnd-003", "vnd-001", 2)
	})
	assert.Equal(t, ferrors.KindOptimisticConflict, ferrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransactionWrapsUntypedErrors(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := s.InTransaction(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	assert.Equal(t, ferrors.KindStoreFailure, ferrors.KindOf(err))

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	err = s.InTransaction(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, ferrors.KindStoreFailure, ferrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntityGraph(t *testing.T) {
	s, mock := newStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM vendors").WithArgs("vnd-001").WillReturnRows(sqlmock.NewRows([]string{
		"vendor_id", "fields", "field_sources", "overrides", "source_system", "source_record_id",
		"status", "merged_into", "version", "created_at", "updated_at",
	}).AddRow("vnd-001", []byte(`{"legal_name":"Acme"}`), []byte(`{}`), []byte(`{}`), "PeopleSoft", "ps-1", "active", nil, 1, now, now))
	mock.ExpectQuery("FROM offerings").WithArgs("vnd-001").WillReturnRows(sqlmock.NewRows([]string{
		"id", "vendor_id", "name", "status", "merged_into_offering_id", "created_at", "updated_at",
	}).AddRow("off-1", "vnd-001", "Analytics", "active", nil, now, now))
	for _, table := range []string{"contracts", "demos", "owners", "contacts", "document_links", "org_assignments"} {
		mock.ExpectQuery("FROM " + table).WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id", "offering_id", "label"}))
	}

	graph, err := s.GetEntityGraph(context.Background(), "vnd-001")
	require.NoError(t, err)
	assert.Equal(t, "vnd-001", graph.Vendor.VendorID)
	require.Len(t, graph.ActiveOfferings(), 1)
	assert.Empty(t, graph.Dependents)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery("FROM vendors").WithArgs("vnd-404").WillReturnRows(sqlmock.NewRows([]string{"vendor_id"}))
	_, err = s.GetEntityGraph(context.Background(), "vnd-404")
	assert.Equal(t, ferrors.KindVendorNotFound, ferrors.KindOf(err))
}
