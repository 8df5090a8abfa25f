package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// upsertMu serializes upserts so concurrent writers of the same file
	// hash interleave whole operations, never partial ones.
	upsertMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reconciliation_records (
	id            TEXT PRIMARY KEY,
	file_id       TEXT,
	file_name     TEXT,
	file_hash     TEXT NOT NULL UNIQUE,
	invoice       TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	discrepancies TEXT NOT NULL,
	reconciled_at DATETIME NOT NULL,
	reviewed_by   TEXT,
	reviewed_at   DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_status ON reconciliation_records(json_extract(outcome, '$.status'));
CREATE INDEX IF NOT EXISTS idx_records_vendor ON reconciliation_records(json_extract(invoice, '$.vendor_name'));
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *model.ReconciliationRecord) (*model.ReconciliationRecord, error) {
	if rec.FileHash == "" {
		return nil, eris.New("sqlite: upsert record without file hash")
	}

	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	invoiceJSON, outcomeJSON, discJSON, err := marshalRecordPayload(rec)
	if err != nil {
		return nil, err
	}

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	// On conflict the existing row keeps its id and created_at; everything
	// else is replaced and any prior review is cleared.
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO reconciliation_records
		 (id, file_id, file_name, file_hash, invoice, outcome, discrepancies, reconciled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file_hash) DO UPDATE SET
		   file_id = excluded.file_id,
		   file_name = excluded.file_name,
		   invoice = excluded.invoice,
		   outcome = excluded.outcome,
		   discrepancies = excluded.discrepancies,
		   reconciled_at = excluded.reconciled_at,
		   reviewed_by = NULL,
		   reviewed_at = NULL,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at`,
		id, rec.FileID, rec.FileName, rec.FileHash,
		string(invoiceJSON), string(outcomeJSON), string(discJSON),
		rec.ReconciledAt.UTC(), now, now,
	)

	stored := *rec
	if err := row.Scan(&stored.ID, &stored.CreatedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert record %s", rec.FileHash)
	}
	stored.UpdatedAt = now
	stored.ReviewedBy = ""
	stored.ReviewedAt = nil
	return &stored, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ReconciliationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectRecordSQLite+` WHERE id = ?`, id,
	)
	return scanRecordSQLite(row, id)
}

func (s *SQLiteStore) GetByHash(ctx context.Context, fileHash string) (*model.ReconciliationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectRecordSQLite+` WHERE file_hash = ?`, fileHash,
	)
	rec, err := scanRecordSQLite(row, fileHash)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReconciliationRecord, error) {
	query := selectRecordSQLite + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND json_extract(outcome, '$.status') = ?`
		args = append(args, string(filter.Status))
	}
	if filter.VendorName != "" {
		query += ` AND json_extract(invoice, '$.vendor_name') = ?`
		args = append(args, filter.VendorName)
	}
	query += ` ORDER BY reconciled_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []model.ReconciliationRecord
	for rows.Next() {
		r, err := scanRecordSQLite(rows, "")
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reconciliation_records WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete record %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) ReviewRecord(ctx context.Context, id string, reviewedBy string) error {
	if reviewedBy == "" {
		return eris.New("sqlite: review without reviewer")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE reconciliation_records SET reviewed_by = ?, reviewed_at = ?, updated_at = ? WHERE id = ?`,
		reviewedBy, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: review record %s", id)
	}
	return checkRowsAffected(res, id)
}

// helpers

const selectRecordSQLite = `SELECT id, file_id, file_name, file_hash, invoice, outcome, discrepancies, reconciled_at, reviewed_by, reviewed_at, created_at, updated_at FROM reconciliation_records`

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

func marshalRecordPayload(rec *model.ReconciliationRecord) (invoice, outcome, discrepancies []byte, err error) {
	invoice, err = json.Marshal(rec.Invoice)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal invoice")
	}
	outcome, err = json.Marshal(rec.Outcome)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal outcome")
	}
	discs := rec.Discrepancies
	if discs == nil {
		discs = []model.Discrepancy{}
	}
	discrepancies, err = json.Marshal(discs)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal discrepancies")
	}
	return invoice, outcome, discrepancies, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecordSQLite(row scannable, key string) (*model.ReconciliationRecord, error) {
	var r model.ReconciliationRecord
	var fileID, fileName, reviewedBy sql.NullString
	var reviewedAt sql.NullTime
	var invoiceJSON, outcomeJSON, discJSON string

	err := row.Scan(&r.ID, &fileID, &fileName, &r.FileHash,
		&invoiceJSON, &outcomeJSON, &discJSON,
		&r.ReconciledAt, &reviewedBy, &reviewedAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	r.FileID = fileID.String
	r.FileName = fileName.String
	r.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	if err := unmarshalRecordPayload(&r, []byte(invoiceJSON), []byte(outcomeJSON), []byte(discJSON)); err != nil {
		return nil, err
	}
	return &r, nil
}

func unmarshalRecordPayload(r *model.ReconciliationRecord, invoice, outcome, discrepancies []byte) error {
	if err := json.Unmarshal(invoice, &r.Invoice); err != nil {
		return eris.Wrap(err, "store: unmarshal invoice")
	}
	if err := json.Unmarshal(outcome, &r.Outcome); err != nil {
		return eris.Wrap(err, "store: unmarshal outcome")
	}
	if err := json.Unmarshal(discrepancies, &r.Discrepancies); err != nil {
		return eris.Wrap(err, "store: unmarshal discrepancies")
	}
	return nil
}
