package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
)

// adjudicatorSystemText fixes the output contract for the reasoning call.
// The same text is sent on every run, so it carries a cache breakpoint.
const adjudicatorSystemText = `You are an accounts-payable analyst matching an invoice to the single contract it was billed under.

A contract is a plausible match only if at least one strong identifying signal aligns with the invoice: the vendor name, a contract or purchase order number, or the invoice date falling inside the contract's effective date range. Topical similarity without an aligned identifier is NOT a match. Confidence must reflect how many strong signals align and how exactly, not retrieval ranking.

Return ONLY a JSON object of this exact shape:
{"matched_contract_id": "<id of the matching candidate, or null if none>", "confidence": <number 0.0-1.0>, "rationale": "<one or two sentences>", "discrepancies": [{"field": "<field name>", "invoice_value": "<value on the invoice>", "contract_value": "<value in the contract>", "note": "<optional explanation>", "severity": "info" | "warning" | "critical"}]}

List a discrepancy only for contract terms the invoice disagrees with (for example renewal or termination clauses covering the invoice period). Leave the array empty when there is no match or no disagreement. Do not report payment terms, totals, or vendor tax ids; those are checked separately.`

const adjudicatorPrompt = `Invoice:
%s

Candidate contracts:
%s

Decide which candidate, if any, is the contract this invoice was billed under.`

// adjudicationResponse is the reasoning call's output contract. Pointer
// fields distinguish "absent" from zero so validation can reject an answer
// that names a contract but omits its confidence.
type adjudicationResponse struct {
	MatchedContractID *string             `json:"matched_contract_id"`
	Confidence        *float64            `json:"confidence"`
	Rationale         string              `json:"rationale"`
	Discrepancies     []model.Discrepancy `json:"discrepancies"`
}

// Adjudicate decides the single best-matching contract for the invoice, or
// an explicit no-match. With no candidates it returns no-match immediately
// without a reasoning call. A reasoning response outside the output contract
// (unknown id, missing or out-of-range confidence, malformed JSON) degrades
// to no-match with a diagnostic rationale, never to a guess. The returned
// discrepancies are the reasoning call's proposals for the comparator;
// they are nil unless the outcome is a match.
//
// The only error returns are transport-level failures of the reasoning call
// itself (timeout, network); those abort the run as retryable.
func (e *Engine) Adjudicate(ctx context.Context, invoice model.InvoiceRecord, candidates []model.ContractCandidate) (model.MatchOutcome, []model.Discrepancy, error) {
	if len(candidates) == 0 {
		return model.NoMatch("no candidate contracts retrieved"), nil, nil
	}

	prompt := fmt.Sprintf(adjudicatorPrompt,
		formatInvoiceContext(invoice),
		formatCandidateContext(candidates),
	)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.AdjudicateTimeout)
	defer cancel()

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "adjudicate")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(adjudicatorSystemText),
			Messages: []anthropic.Message{
				{Role: "user", Content: prompt},
			},
		})
	})
	if err != nil {
		return model.MatchOutcome{}, nil, eris.Wrap(err, "adjudicate: reasoning call")
	}
	resp.Usage.LogCost(e.cfg.Model, "adjudicate")

	outcome, proposed := validateAdjudication(resp.Text(), candidates)
	return outcome, proposed, nil
}

// validateAdjudication enforces the output contract on the raw response
// text. Every violation resolves to no-match with the violation as the
// rationale, so downstream consumers see "could not reconcile" instead of a
// fabricated match.
func validateAdjudication(text string, candidates []model.ContractCandidate) (model.MatchOutcome, []model.Discrepancy) {
	var parsed adjudicationResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &parsed); err != nil {
		zap.L().Warn("adjudicate: response is not valid JSON", zap.Error(err))
		return model.NoMatch("adjudication response was not valid JSON"), nil
	}

	if parsed.MatchedContractID == nil || *parsed.MatchedContractID == "" {
		rationale := parsed.Rationale
		if rationale == "" {
			rationale = "adjudicator found no plausible match"
		}
		return model.NoMatch(rationale), nil
	}

	id := *parsed.MatchedContractID
	if _, ok := findCandidate(candidates, id); !ok {
		zap.L().Warn("adjudicate: response named a contract outside the candidate set",
			zap.String("contract_id", id),
		)
		return model.NoMatch(fmt.Sprintf("adjudication named unknown contract %q", id)), nil
	}

	if parsed.Confidence == nil {
		return model.NoMatch("adjudication matched a contract but omitted confidence"), nil
	}
	conf := *parsed.Confidence
	if conf < 0 || conf > 1 {
		return model.NoMatch(fmt.Sprintf("adjudication confidence %.2f outside [0,1]", conf)), nil
	}

	contract, _ := findCandidate(candidates, id)
	return model.Matched(id, contract.FileName, conf, parsed.Rationale), parsed.Discrepancies
}

func formatInvoiceContext(invoice model.InvoiceRecord) string {
	var b strings.Builder
	writeField := func(name, value string) {
		if value != "" {
			b.WriteString(name + ": " + value + "\n")
		}
	}
	writeField("Vendor", invoice.VendorName)
	writeField("Vendor tax id", invoice.VendorTaxID)
	writeField("Invoice number", invoice.InvoiceNumber)
	writeField("PO number", invoice.PurchaseOrderNumber)
	writeField("Invoice date", invoice.InvoiceDate)
	writeField("Due date", invoice.DueDate)
	writeField("Payment terms", invoice.PaymentTerms)
	if invoice.Total != nil {
		fmt.Fprintf(&b, "Total: %.2f %s\n", *invoice.Total, invoice.Currency)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCandidateContext(candidates []model.ContractCandidate) string {
	var parts []string
	for _, c := range candidates {
		var b strings.Builder
		fmt.Fprintf(&b, "--- Candidate id: %s ---\n", c.ID)
		if c.FileName != "" {
			b.WriteString("File: " + c.FileName + "\n")
		}
		if c.VendorName != "" {
			b.WriteString("Vendor: " + c.VendorName + "\n")
		}
		if c.ContractNumber != "" {
			b.WriteString("Contract number: " + c.ContractNumber + "\n")
		}
		if c.PONumber != "" {
			b.WriteString("PO number: " + c.PONumber + "\n")
		}
		if c.EffectiveStart != "" || c.EffectiveEnd != "" {
			fmt.Fprintf(&b, "Effective: %s to %s\n", c.EffectiveStart, c.EffectiveEnd)
		}
		if c.PaymentTerms != "" {
			b.WriteString("Payment terms: " + c.PaymentTerms + "\n")
		}
		text := c.Text
		if len(text) > 4000 {
			text = text[:4000]
		}
		if text != "" {
			b.WriteString("Retrieved text:\n" + text + "\n")
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
