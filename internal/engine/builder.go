package engine

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// BuildRecord composes the reconciliation record to persist. It is pure: no
// external calls, and its only failure mode is an invariant violation, which
// indicates a programming defect upstream and must halt the run before
// anything is written.
func BuildRecord(in Input, outcome model.MatchOutcome, discrepancies []model.Discrepancy, now time.Time) (*model.ReconciliationRecord, error) {
	if in.FileHash == "" {
		return nil, eris.New("build record: empty file hash")
	}

	switch outcome.Status {
	case model.MatchStatusMatched:
		if outcome.ContractID == "" {
			return nil, eris.New("build record: matched outcome without contract id")
		}
	case model.MatchStatusNone:
		if len(discrepancies) > 0 {
			return nil, eris.Errorf("build record: %d discrepancies on a no-match outcome", len(discrepancies))
		}
	default:
		return nil, eris.Errorf("build record: unknown match status %q", outcome.Status)
	}

	if outcome.Confidence < 0 || outcome.Confidence > 1 {
		return nil, eris.Errorf("build record: confidence %.4f outside [0,1]", outcome.Confidence)
	}

	for i, d := range discrepancies {
		if d.Field == "" {
			return nil, eris.Errorf("build record: discrepancy %d has no field", i)
		}
		if !model.ValidSeverity(d.Severity) {
			return nil, eris.Errorf("build record: discrepancy %q has severity %q", d.Field, d.Severity)
		}
	}

	if discrepancies == nil {
		discrepancies = []model.Discrepancy{}
	}

	return &model.ReconciliationRecord{
		FileID:        in.FileID,
		FileName:      in.FileName,
		FileHash:      in.FileHash,
		Invoice:       in.Invoice,
		Outcome:       outcome,
		Discrepancies: discrepancies,
		ReconciledAt:  now.UTC(),
	}, nil
}
