package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_record": upsertRecordSQL,
	"get_record":    selectRecordPostgres + ` WHERE id = $1`,
	"get_by_hash":   selectRecordPostgres + ` WHERE file_hash = $1`,
	"delete_record": `DELETE FROM reconciliation_records WHERE id = $1`,
	"review_record": `UPDATE reconciliation_records SET reviewed_by = $1, reviewed_at = $2, updated_at = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reconciliation_records (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_id       TEXT,
	file_name     TEXT,
	file_hash     TEXT NOT NULL UNIQUE,
	invoice       JSONB NOT NULL,
	outcome       JSONB NOT NULL,
	discrepancies JSONB NOT NULL,
	reconciled_at TIMESTAMPTZ NOT NULL,
	reviewed_by   TEXT,
	reviewed_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON reconciliation_records((outcome->>'status'));
CREATE INDEX IF NOT EXISTS idx_records_vendor ON reconciliation_records((invoice->>'vendor_name'));
CREATE INDEX IF NOT EXISTS idx_records_reconciled_at ON reconciliation_records(reconciled_at DESC);
`

const selectRecordPostgres = `SELECT id, file_id, file_name, file_hash, invoice, outcome, discrepancies, reconciled_at, reviewed_by, reviewed_at, created_at, updated_at FROM reconciliation_records`

// upsertRecordSQL replaces the row for a file hash in a single atomic
// statement. The conflicting row keeps its id and created_at; any prior
// review is cleared because the payload it reviewed no longer exists.
const upsertRecordSQL = `INSERT INTO reconciliation_records
 (id, file_id, file_name, file_hash, invoice, outcome, discrepancies, reconciled_at, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
 ON CONFLICT (file_hash) DO UPDATE SET
   file_id = EXCLUDED.file_id,
   file_name = EXCLUDED.file_name,
   invoice = EXCLUDED.invoice,
   outcome = EXCLUDED.outcome,
   discrepancies = EXCLUDED.discrepancies,
   reconciled_at = EXCLUDED.reconciled_at,
   reviewed_by = NULL,
   reviewed_at = NULL,
   updated_at = EXCLUDED.updated_at
 RETURNING id, created_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, rec *model.ReconciliationRecord) (*model.ReconciliationRecord, error) {
	if rec.FileHash == "" {
		return nil, eris.New("postgres: upsert record without file hash")
	}

	invoiceJSON, outcomeJSON, discJSON, err := marshalRecordPayload(rec)
	if err != nil {
		return nil, err
	}

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	stored := *rec
	err = s.pool.QueryRow(ctx, upsertRecordSQL,
		id, rec.FileID, rec.FileName, rec.FileHash,
		invoiceJSON, outcomeJSON, discJSON,
		rec.ReconciledAt.UTC(), now, now,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert record %s", rec.FileHash)
	}
	stored.UpdatedAt = now
	stored.ReviewedBy = ""
	stored.ReviewedAt = nil
	return &stored, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ReconciliationRecord, error) {
	row := s.pool.QueryRow(ctx, selectRecordPostgres+` WHERE id = $1`, id)
	return scanRecordPostgres(row, id)
}

func (s *PostgresStore) GetByHash(ctx context.Context, fileHash string) (*model.ReconciliationRecord, error) {
	row := s.pool.QueryRow(ctx, selectRecordPostgres+` WHERE file_hash = $1`, fileHash)
	rec, err := scanRecordPostgres(row, fileHash)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReconciliationRecord, error) {
	query := selectRecordPostgres + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND outcome->>'status' = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.VendorName != "" {
		query += fmt.Sprintf(` AND invoice->>'vendor_name' = $%d`, argIdx)
		args = append(args, filter.VendorName)
		argIdx++
	}
	query += ` ORDER BY reconciled_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.ReconciliationRecord
	for rows.Next() {
		r, err := scanRecordPostgres(rows, "")
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reconciliation_records WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

func (s *PostgresStore) ReviewRecord(ctx context.Context, id string, reviewedBy string) error {
	if reviewedBy == "" {
		return eris.New("postgres: review without reviewer")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE reconciliation_records SET reviewed_by = $1, reviewed_at = $2, updated_at = $2 WHERE id = $3`,
		reviewedBy, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: review record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

func scanRecordPostgres(row pgx.Row, key string) (*model.ReconciliationRecord, error) {
	var r model.ReconciliationRecord
	var fileID, fileName, reviewedBy *string
	var reviewedAt *time.Time
	var invoiceJSON, outcomeJSON, discJSON []byte

	err := row.Scan(&r.ID, &fileID, &fileName, &r.FileHash,
		&invoiceJSON, &outcomeJSON, &discJSON,
		&r.ReconciledAt, &reviewedBy, &reviewedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	if fileID != nil {
		r.FileID = *fileID
	}
	if fileName != nil {
		r.FileName = *fileName
	}
	if reviewedBy != nil {
		r.ReviewedBy = *reviewedBy
	}
	r.ReviewedAt = reviewedAt
	if err := unmarshalRecordPayload(&r, invoiceJSON, outcomeJSON, discJSON); err != nil {
		return nil, err
	}
	return &r, nil
}
