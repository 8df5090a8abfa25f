package model

import "time"

// MatchStatus tags a MatchOutcome.
type MatchStatus string

const (
	MatchStatusMatched MatchStatus = "matched"
	MatchStatusNone    MatchStatus = "no_match"
)

// MatchOutcome is the terminal result of the match adjudicator: either a
// single matched contract with a confidence and rationale, or an explicit
// no-match with a rationale. A confidence of 0 on a matched outcome means
// "matched, confidence unknown" and is distinct from no_match.
type MatchOutcome struct {
	Status       MatchStatus `json:"status"`
	ContractID   string      `json:"contract_id,omitempty"`
	ContractName string      `json:"contract_name,omitempty"`
	Confidence   float64     `json:"confidence"`
	Rationale    string      `json:"rationale"`
}

// Matched builds a matched outcome.
func Matched(contractID, contractName string, confidence float64, rationale string) MatchOutcome {
	return MatchOutcome{
		Status:       MatchStatusMatched,
		ContractID:   contractID,
		ContractName: contractName,
		Confidence:   confidence,
		Rationale:    rationale,
	}
}

// NoMatch builds a no-match outcome.
func NoMatch(rationale string) MatchOutcome {
	return MatchOutcome{Status: MatchStatusNone, Rationale: rationale}
}

// IsMatched reports whether the outcome names a contract.
func (o MatchOutcome) IsMatched() bool {
	return o.Status == MatchStatusMatched
}

// Severity grades a discrepancy.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is one of the three enumerated levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// DiscrepancySource records which comparator produced a discrepancy.
type DiscrepancySource string

const (
	SourceDeterministic DiscrepancySource = "deterministic"
	SourceReasoning     DiscrepancySource = "reasoning"
)

// Discrepancy is a single field-level disagreement between the invoice and
// the matched contract. An empty discrepancy list on a matched record means
// the invoice is fully compliant.
type Discrepancy struct {
	Field         string            `json:"field"`
	InvoiceValue  string            `json:"invoice_value,omitempty"`
	ContractValue string            `json:"contract_value,omitempty"`
	Note          string            `json:"note,omitempty"`
	Severity      Severity          `json:"severity"`
	Source        DiscrepancySource `json:"source,omitempty"`
}

// ReconciliationRecord is the authoritative stored result of reconciling
// one invoice file. Exactly one record is live per file_hash; re-processing
// the same file replaces the prior record in place.
type ReconciliationRecord struct {
	ID       string `json:"id"`
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileHash string `json:"file_hash"`

	Invoice       InvoiceRecord `json:"invoice"`
	Outcome       MatchOutcome  `json:"outcome"`
	Discrepancies []Discrepancy `json:"discrepancies"`

	ReconciledAt time.Time  `json:"reconciled_at"`
	ReviewedBy   string     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
