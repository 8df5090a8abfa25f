package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_UpsertRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	createdAt := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery(`INSERT INTO reconciliation_records`).
		WithArgs(pgxmock.AnyArg(), "file-1", "acme_invoice_001.pdf", "hash-a",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("existing-id", createdAt))

	stored, err := s.UpsertRecord(context.Background(), testRecord("hash-a"))
	require.NoError(t, err)
	// The conflicting row's id and created_at survive the replacement.
	assert.Equal(t, "existing-id", stored.ID)
	assert.Equal(t, createdAt, stored.CreatedAt)
	assert.Empty(t, stored.ReviewedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRecord_MissingHash(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.UpsertRecord(context.Background(), testRecord(""))
	require.Error(t, err)
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, file_id, file_name, file_hash, invoice, outcome, discrepancies, reconciled_at, reviewed_by, reviewed_at, created_at, updated_at FROM reconciliation_records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByHash_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM reconciliation_records WHERE file_hash = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetByHash(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByHash_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM reconciliation_records WHERE file_hash = \$1`).
		WithArgs("hash-a").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "file_id", "file_name", "file_hash", "invoice", "outcome",
			"discrepancies", "reconciled_at", "reviewed_by", "reviewed_at",
			"created_at", "updated_at",
		}).AddRow(
			"rec-1", ptr("file-1"), ptr("acme_invoice_001.pdf"), "hash-a",
			[]byte(`{"invoice_number":"INV-001","vendor_name":"Acme Co"}`),
			[]byte(`{"status":"matched","contract_id":"contract-1","confidence":0.92,"rationale":"aligned"}`),
			[]byte(`[]`),
			now, (*string)(nil), (*time.Time)(nil), now, now,
		))

	rec, err := s.GetByHash(context.Background(), "hash-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "Acme Co", rec.Invoice.VendorName)
	assert.True(t, rec.Outcome.IsMatched())
	assert.Empty(t, rec.Discrepancies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM reconciliation_records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteRecord(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReviewRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE reconciliation_records SET reviewed_by = \$1`).
		WithArgs("maria", pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ReviewRecord(context.Background(), "rec-1", "maria")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReviewRecord_EmptyReviewer(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.ReviewRecord(context.Background(), "rec-1", "")
	require.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
