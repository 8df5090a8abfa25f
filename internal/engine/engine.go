// Package engine implements invoice-to-contract reconciliation: candidate
// retrieval from the contract index, match adjudication, field-level
// discrepancy comparison, and assembly of the stored reconciliation record.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
	"github.com/sells-group/reconcile-cli/pkg/contractindex"
)

// Config holds the engine's explicit configuration. It is passed in at
// construction so multiple engines with different settings can coexist.
type Config struct {
	IndexName string
	TopK      int

	Model     string
	MaxTokens int64

	// AmountTolerance is the absolute tolerance for numeric amount
	// comparison. Zero means exact.
	AmountTolerance float64

	RetrieveTimeout   time.Duration
	AdjudicateTimeout time.Duration
}

// Input identifies one invoice file to reconcile.
type Input struct {
	FileID   string
	FileName string
	FileHash string
	Invoice  model.InvoiceRecord
}

// Engine runs reconciliation for one invoice file at a time. Instances are
// safe for concurrent use across files; the store is the only shared
// synchronization point.
type Engine struct {
	index   contractindex.Client
	ai      anthropic.Client
	records store.Store
	cfg     Config

	// breaker guards the retrieval index so a dead index fails fast
	// instead of stalling every run on its timeout.
	breaker *resilience.CircuitBreaker
}

// New creates an Engine over the given collaborators.
func New(index contractindex.Client, ai anthropic.Client, records store.Store, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RetrieveTimeout <= 0 {
		cfg.RetrieveTimeout = 30 * time.Second
	}
	if cfg.AdjudicateTimeout <= 0 {
		cfg.AdjudicateTimeout = 60 * time.Second
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("contract index breaker state change",
			zap.String("index", cfg.IndexName),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return &Engine{
		index:   index,
		ai:      ai,
		records: records,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
}

// Reconcile runs one invoice file end to end and returns the stored record.
// Timeouts on the retrieval or reasoning call abort the run with a retryable
// error and persist nothing; every other failure mode degrades into a stored
// record (no-match with a diagnostic rationale).
func (e *Engine) Reconcile(ctx context.Context, in Input) (*model.ReconciliationRecord, error) {
	if in.FileHash == "" {
		return nil, eris.New("engine: reconcile without file hash")
	}

	start := time.Now()

	candidates, err := e.SelectCandidates(ctx, in.Invoice)
	if err != nil {
		return nil, resilience.MarkRetryable(eris.Wrapf(err, "engine: retrieve candidates %s", in.FileHash))
	}

	outcome, proposed, err := e.Adjudicate(ctx, in.Invoice, candidates)
	if err != nil {
		if resilience.IsTimeout(err) || resilience.IsTransient(err) {
			return nil, resilience.MarkRetryable(eris.Wrapf(err, "engine: adjudicate %s", in.FileHash))
		}
		return nil, eris.Wrapf(err, "engine: adjudicate %s", in.FileHash)
	}

	var discrepancies []model.Discrepancy
	if outcome.IsMatched() {
		contract, ok := findCandidate(candidates, outcome.ContractID)
		if !ok {
			// Adjudicate guarantees the id came from the candidate set.
			return nil, eris.Errorf("engine: matched contract %s not in candidate set", outcome.ContractID)
		}
		discrepancies = Compare(in.Invoice, contract, proposed, e.cfg.AmountTolerance)
	}

	rec, err := BuildRecord(in, outcome, discrepancies, time.Now())
	if err != nil {
		return nil, eris.Wrapf(err, "engine: build record %s", in.FileHash)
	}

	stored, err := e.records.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, resilience.MarkRetryable(eris.Wrapf(err, "engine: upsert record %s", in.FileHash))
	}

	zap.L().Info("reconciliation complete",
		zap.String("file_hash", in.FileHash),
		zap.String("file_name", in.FileName),
		zap.String("status", string(stored.Outcome.Status)),
		zap.Float64("confidence", stored.Outcome.Confidence),
		zap.Int("candidates", len(candidates)),
		zap.Int("discrepancies", len(stored.Discrepancies)),
		zap.Duration("duration", time.Since(start)),
	)
	return stored, nil
}

func findCandidate(candidates []model.ContractCandidate, id string) (model.ContractCandidate, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return model.ContractCandidate{}, false
}
