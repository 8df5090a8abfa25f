package model

// FieldSpec describes one field of the stored reconciliation record so UI
// and automation consumers can render and validate without hardcoding the
// schema.
type FieldSpec struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"` // string, number, array, object, datetime
	Description string      `json:"description" yaml:"description"`
	Editable    bool        `json:"editable" yaml:"editable"` // human-editable through the review surface
	Enum        []string    `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       []FieldSpec `json:"items,omitempty" yaml:"items,omitempty"` // element fields for array/object types
}

// SchemaDescriptor describes the reconciliation record schema and the
// storage collection it lives in.
type SchemaDescriptor struct {
	Collection string      `json:"collection" yaml:"collection"`
	Key        string      `json:"key" yaml:"key"` // dedup key field
	Fields     []FieldSpec `json:"fields" yaml:"fields"`
}

// DescribeRecordSchema returns the schema descriptor for ReconciliationRecord
// as persisted in the given collection. Field order matches storage order.
func DescribeRecordSchema(collection string) SchemaDescriptor {
	severities := []string{string(SeverityInfo), string(SeverityWarning), string(SeverityCritical)}

	return SchemaDescriptor{
		Collection: collection,
		Key:        "file_hash",
		Fields: []FieldSpec{
			{Name: "id", Type: "string", Description: "Stable storage identifier, reused across re-processing of the same file"},
			{Name: "file_id", Type: "string", Description: "Identifier of the source file in the upload store"},
			{Name: "file_name", Type: "string", Description: "Original file name of the invoice document"},
			{Name: "file_hash", Type: "string", Description: "SHA-256 of the source file bytes; deduplication key"},
			{Name: "invoice", Type: "object", Description: "Structured fields extracted from the invoice", Items: []FieldSpec{
				{Name: "invoice_number", Type: "string", Description: "Invoice number or identifier"},
				{Name: "invoice_date", Type: "string", Description: "Invoice date (YYYY-MM-DD where available)"},
				{Name: "due_date", Type: "string", Description: "Payment due date"},
				{Name: "vendor_name", Type: "string", Description: "Vendor or supplier name"},
				{Name: "vendor_address", Type: "string", Description: "Vendor address"},
				{Name: "vendor_tax_id", Type: "string", Description: "Normalized vendor tax identifier"},
				{Name: "purchase_order_number", Type: "string", Description: "Purchase order number if present"},
				{Name: "payment_terms", Type: "string", Description: "Payment terms, e.g. Net 30"},
				{Name: "line_items", Type: "array", Description: "Billed line items", Items: []FieldSpec{
					{Name: "description", Type: "string", Description: "Line item description"},
					{Name: "quantity", Type: "number", Description: "Quantity"},
					{Name: "unit_price", Type: "number", Description: "Price per unit"},
					{Name: "amount", Type: "number", Description: "Line total"},
				}},
				{Name: "subtotal", Type: "number", Description: "Subtotal before tax"},
				{Name: "tax", Type: "number", Description: "Tax amount"},
				{Name: "total", Type: "number", Description: "Total amount due"},
				{Name: "currency", Type: "string", Description: "Currency code"},
				{Name: "field_provenance", Type: "object", Description: "Source location per field for UI highlighting"},
			}},
			{Name: "outcome", Type: "object", Description: "Contract match outcome", Items: []FieldSpec{
				{Name: "status", Type: "string", Description: "Match status", Enum: []string{string(MatchStatusMatched), string(MatchStatusNone)}},
				{Name: "contract_id", Type: "string", Description: "Identifier of the matched contract in the index"},
				{Name: "contract_name", Type: "string", Description: "File name of the matched contract"},
				{Name: "confidence", Type: "number", Description: "Match confidence in [0,1]; 0 on a matched record means confidence unknown"},
				{Name: "rationale", Type: "string", Description: "Why the contract was or was not matched"},
			}},
			{Name: "discrepancies", Type: "array", Description: "Field-level disagreements between invoice and matched contract; empty means fully compliant", Editable: true, Items: []FieldSpec{
				{Name: "field", Type: "string", Description: "Field the discrepancy concerns"},
				{Name: "invoice_value", Type: "string", Description: "Value on the invoice side"},
				{Name: "contract_value", Type: "string", Description: "Value on the contract side"},
				{Name: "note", Type: "string", Description: "Additional context", Editable: true},
				{Name: "severity", Type: "string", Description: "Discrepancy severity", Enum: severities, Editable: true},
				{Name: "source", Type: "string", Description: "Which comparator produced the entry", Enum: []string{string(SourceDeterministic), string(SourceReasoning)}},
			}},
			{Name: "reconciled_at", Type: "datetime", Description: "When the engine produced this record"},
			{Name: "reviewed_by", Type: "string", Description: "Reviewer who last edited the record", Editable: true},
			{Name: "reviewed_at", Type: "datetime", Description: "When the record was last reviewed"},
			{Name: "created_at", Type: "datetime", Description: "First time this file hash was stored"},
			{Name: "updated_at", Type: "datetime", Description: "Last write, including replacement by re-processing"},
		},
	}
}
