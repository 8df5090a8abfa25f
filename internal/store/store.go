package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// ErrNotFound is returned when a lookup by id matches no record.
var ErrNotFound = eris.New("store: record not found")

// RecordFilter specifies criteria for listing reconciliation records.
type RecordFilter struct {
	Status     model.MatchStatus `json:"status,omitempty"`
	VendorName string            `json:"vendor_name,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for reconciliation records.
// Exactly one record is live per file hash: UpsertRecord inserts on first
// sight of a hash and replaces the payload in place on every later one,
// preserving the existing record id.
type Store interface {
	// UpsertRecord writes rec keyed on rec.FileHash and returns the stored
	// record. When a record for the hash already exists its id and created_at
	// survive and the rest of the row is replaced, clearing any prior review.
	UpsertRecord(ctx context.Context, rec *model.ReconciliationRecord) (*model.ReconciliationRecord, error)

	GetRecord(ctx context.Context, id string) (*model.ReconciliationRecord, error)

	// GetByHash returns the record for a file hash, or (nil, nil) when none
	// exists.
	GetByHash(ctx context.Context, fileHash string) (*model.ReconciliationRecord, error)

	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReconciliationRecord, error)

	DeleteRecord(ctx context.Context, id string) error

	// ReviewRecord marks a record as human-reviewed.
	ReviewRecord(ctx context.Context, id string, reviewedBy string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
