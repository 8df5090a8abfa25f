package model

// ContractCandidate is a contract returned by the retrieval index as
// potentially relevant to an invoice. Candidates exist only for the
// duration of one reconciliation run.
type ContractCandidate struct {
	ID       string  `json:"id"`
	FileName string  `json:"file_name,omitempty"`
	Score    float64 `json:"score"`

	// Text is the retrieved passage(s) from the contract, shown to the
	// adjudicator verbatim.
	Text string `json:"text,omitempty"`

	// Derived terms the index exposes in node metadata. Any may be empty
	// when the indexing step could not derive them.
	VendorName     string `json:"vendor_name,omitempty"`
	VendorTaxID    string `json:"vendor_tax_id,omitempty"`
	ContractNumber string `json:"contract_number,omitempty"`
	PONumber       string `json:"po_number,omitempty"`
	EffectiveStart string `json:"effective_start,omitempty"` // YYYY-MM-DD
	EffectiveEnd   string `json:"effective_end,omitempty"`
	PaymentTerms   string `json:"payment_terms,omitempty"`
	TotalValue     string `json:"total_value,omitempty"` // as indexed, possibly with currency symbol
}
