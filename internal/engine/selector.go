package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/pkg/contractindex"
)

// SelectCandidates queries the contract index with the invoice's
// highest-signal fields and returns ranked candidates, best first. Ties on
// retrieval score break by candidate id so repeated runs order identically.
// An unreachable index, an erroring index, and an empty corpus all yield an
// empty slice with a nil error; the adjudicator turns that into a no-match.
// A timed-out retrieval call is different: it returns an error so the run
// aborts as retryable instead of recording a transient stall as no-match.
func (e *Engine) SelectCandidates(ctx context.Context, invoice model.InvoiceRecord) ([]model.ContractCandidate, error) {
	if !invoice.HasIdentifyingFields() {
		zap.L().Warn("selector: invoice has no identifying fields, using generic query")
	}
	query := buildRetrievalQuery(invoice)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RetrieveTimeout)
	defer cancel()

	resp, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*contractindex.QueryResponse, error) {
		return e.index.Query(ctx, contractindex.QueryRequest{
			Index: e.cfg.IndexName,
			Query: query,
			TopK:  e.cfg.TopK,
		})
	})
	if err != nil {
		if resilience.IsTimeout(err) {
			return nil, eris.Wrap(err, "selector: retrieval timed out")
		}
		zap.L().Warn("selector: retrieval failed, treating as zero candidates",
			zap.String("index", e.cfg.IndexName),
			zap.Error(err),
		)
		return nil, nil
	}

	candidates := make([]model.ContractCandidate, 0, len(resp.Nodes))
	for _, n := range resp.Nodes {
		candidates = append(candidates, model.ContractCandidate{
			ID:             n.ID,
			FileName:       n.Metadata.FileName,
			Score:          n.Score,
			Text:           n.Text,
			VendorName:     n.Metadata.VendorName,
			VendorTaxID:    n.Metadata.VendorTaxID,
			ContractNumber: n.Metadata.ContractNumber,
			PONumber:       n.Metadata.PONumber,
			EffectiveStart: n.Metadata.EffectiveStart,
			EffectiveEnd:   n.Metadata.EffectiveEnd,
			PaymentTerms:   n.Metadata.PaymentTerms,
			TotalValue:     n.Metadata.TotalValue,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates, nil
}

// buildRetrievalQuery assembles the query text from invoice fields in
// priority order: vendor name, PO number, invoice number, then the invoice
// date as a bias toward contracts whose effective range covers it. An
// invoice with no strong identifier falls back to a generic query; retrieval
// still surfaces plausible agreements for the adjudicator to reject.
func buildRetrievalQuery(invoice model.InvoiceRecord) string {
	var parts []string
	if invoice.VendorName != "" {
		parts = append(parts, "vendor: "+invoice.VendorName)
	}
	if invoice.PurchaseOrderNumber != "" {
		parts = append(parts, "purchase order: "+invoice.PurchaseOrderNumber)
	}
	if invoice.InvoiceNumber != "" {
		parts = append(parts, "invoice number: "+invoice.InvoiceNumber)
	}
	if len(parts) == 0 {
		parts = append(parts, "contract agreement")
	}
	if invoice.InvoiceDate != "" {
		parts = append(parts, "contract in effect on "+invoice.InvoiceDate)
	}
	return strings.Join(parts, "\n")
}
