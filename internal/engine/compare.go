package engine

import (
	"fmt"
	"math"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Deterministically checked fields, in output order.
const (
	fieldPaymentTerms = "payment_terms"
	fieldTotal        = "total"
	fieldSubtotal     = "subtotal"
	fieldVendorTaxID  = "vendor_tax_id"
)

// Compare produces the field-level discrepancy list between an invoice and
// its matched contract. Deterministic checks run first, always, in a fixed
// field order; the reasoning call's proposals follow in the order received.
// A proposal for a field the deterministic pass already decided is dropped,
// as is one missing its field or carrying an unknown severity. An empty
// result means the invoice is fully compliant.
func Compare(invoice model.InvoiceRecord, contract model.ContractCandidate, proposed []model.Discrepancy, amountTolerance float64) []model.Discrepancy {
	var out []model.Discrepancy
	decided := map[string]bool{}

	// Payment terms is the one required check: missing text on either side
	// is itself a critical discrepancy, not a skip.
	invTerms := normalizeText(invoice.PaymentTerms)
	conTerms := normalizeText(contract.PaymentTerms)
	decided[fieldPaymentTerms] = true
	switch {
	case invTerms == "" && conTerms == "":
		out = append(out, model.Discrepancy{
			Field:    fieldPaymentTerms,
			Note:     "payment terms missing from both invoice and contract",
			Severity: model.SeverityCritical,
			Source:   model.SourceDeterministic,
		})
	case invTerms == "":
		out = append(out, model.Discrepancy{
			Field:         fieldPaymentTerms,
			ContractValue: contract.PaymentTerms,
			Note:          "payment terms missing from invoice",
			Severity:      model.SeverityCritical,
			Source:        model.SourceDeterministic,
		})
	case conTerms == "":
		out = append(out, model.Discrepancy{
			Field:        fieldPaymentTerms,
			InvoiceValue: invoice.PaymentTerms,
			Note:         "payment terms missing from contract",
			Severity:     model.SeverityCritical,
			Source:       model.SourceDeterministic,
		})
	case invTerms != conTerms:
		out = append(out, model.Discrepancy{
			Field:         fieldPaymentTerms,
			InvoiceValue:  invoice.PaymentTerms,
			ContractValue: contract.PaymentTerms,
			Severity:      model.SeverityCritical,
			Source:        model.SourceDeterministic,
		})
	}

	// Amounts compare only when both sides expose a parsable number. The
	// invoice total takes precedence; subtotal is the fallback when the
	// extractor found no total.
	if contractTotal, ok := parseAmount(contract.TotalValue); ok {
		switch {
		case invoice.Total != nil:
			decided[fieldTotal] = true
			if !amountsEqual(*invoice.Total, contractTotal, amountTolerance) {
				out = append(out, model.Discrepancy{
					Field:         fieldTotal,
					InvoiceValue:  formatAmount(*invoice.Total),
					ContractValue: contract.TotalValue,
					Severity:      model.SeverityCritical,
					Source:        model.SourceDeterministic,
				})
			}
		case invoice.Subtotal != nil:
			decided[fieldSubtotal] = true
			if !amountsEqual(*invoice.Subtotal, contractTotal, amountTolerance) {
				out = append(out, model.Discrepancy{
					Field:         fieldSubtotal,
					InvoiceValue:  formatAmount(*invoice.Subtotal),
					ContractValue: contract.TotalValue,
					Note:          "invoice exposes no total, compared subtotal against contract value",
					Severity:      model.SeverityWarning,
					Source:        model.SourceDeterministic,
				})
			}
		}
	}

	// Vendor identifier compares case- and whitespace-insensitively, only
	// when both sides carry one.
	if invoice.VendorTaxID != "" && contract.VendorTaxID != "" {
		decided[fieldVendorTaxID] = true
		if normalizeIdentifier(invoice.VendorTaxID) != normalizeIdentifier(contract.VendorTaxID) {
			out = append(out, model.Discrepancy{
				Field:         fieldVendorTaxID,
				InvoiceValue:  invoice.VendorTaxID,
				ContractValue: contract.VendorTaxID,
				Severity:      model.SeverityWarning,
				Source:        model.SourceDeterministic,
			})
		}
	}

	for _, d := range proposed {
		if d.Field == "" || decided[d.Field] || !model.ValidSeverity(d.Severity) {
			continue
		}
		decided[d.Field] = true
		d.Source = model.SourceReasoning
		out = append(out, d)
	}

	return out
}

func amountsEqual(a, b, tolerance float64) bool {
	if tolerance < 0 {
		tolerance = 0
	}
	return math.Abs(a-b) <= tolerance
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
