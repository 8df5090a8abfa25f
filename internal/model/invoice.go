package model

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string   `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// FieldProvenance records where a field value was found in the source
// document, so a review UI can highlight it. Page is 1-based.
type FieldProvenance struct {
	Page       int     `json:"page,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
}

// InvoiceRecord holds the structured fields extracted from an invoice
// document. It is produced by the extraction collaborator and consumed
// read-only by the reconciliation engine. Pointer fields distinguish
// "absent from the document" from a zero value.
type InvoiceRecord struct {
	InvoiceNumber       string     `json:"invoice_number,omitempty"`
	InvoiceDate         string     `json:"invoice_date,omitempty"` // YYYY-MM-DD when the extractor could normalize it
	DueDate             string     `json:"due_date,omitempty"`
	VendorName          string     `json:"vendor_name,omitempty"`
	VendorAddress       string     `json:"vendor_address,omitempty"`
	VendorTaxID         string     `json:"vendor_tax_id,omitempty"`
	PurchaseOrderNumber string     `json:"purchase_order_number,omitempty"`
	PaymentTerms        string     `json:"payment_terms,omitempty"`
	LineItems           []LineItem `json:"line_items,omitempty"`
	Subtotal            *float64   `json:"subtotal,omitempty"`
	Tax                 *float64   `json:"tax,omitempty"`
	Total               *float64   `json:"total,omitempty"`
	Currency            string     `json:"currency,omitempty"`

	// FieldProvenance maps invoice field names to their source locations.
	FieldProvenance map[string]FieldProvenance `json:"field_provenance,omitempty"`
}

// HasIdentifyingFields reports whether the invoice carries at least one
// strong identifier usable for contract retrieval.
func (r InvoiceRecord) HasIdentifyingFields() bool {
	return r.VendorName != "" || r.PurchaseOrderNumber != "" || r.InvoiceNumber != ""
}
