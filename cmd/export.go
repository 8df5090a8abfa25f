package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

var exportOut string

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records to an xlsx workbook for offline review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := buildRecordFilter()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		if err := writeWorkbook(recs, exportOut); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("records", len(recs)),
		)
		return nil
	},
}

// writeWorkbook emits one Records row per stored record and one
// Discrepancies row per discrepancy, keyed back by record id.
func writeWorkbook(recs []model.ReconciliationRecord, path string) error {
	f := xlsx.NewFile()

	records, err := f.AddSheet("Records")
	if err != nil {
		return eris.Wrap(err, "export: add records sheet")
	}
	addRow(records,
		"id", "file_name", "file_hash", "vendor", "invoice_number",
		"status", "contract", "confidence", "rationale",
		"discrepancies", "reviewed_by", "reconciled_at",
	)

	discrepancies, err := f.AddSheet("Discrepancies")
	if err != nil {
		return eris.Wrap(err, "export: add discrepancies sheet")
	}
	addRow(discrepancies,
		"record_id", "file_name", "field", "invoice_value",
		"contract_value", "severity", "source", "note",
	)

	for _, rec := range recs {
		addRow(records,
			rec.ID,
			rec.FileName,
			rec.FileHash,
			rec.Invoice.VendorName,
			rec.Invoice.InvoiceNumber,
			string(rec.Outcome.Status),
			rec.Outcome.ContractName,
			fmt.Sprintf("%.2f", rec.Outcome.Confidence),
			rec.Outcome.Rationale,
			fmt.Sprintf("%d", len(rec.Discrepancies)),
			rec.ReviewedBy,
			rec.ReconciledAt.Format(time.RFC3339),
		)

		for _, d := range rec.Discrepancies {
			addRow(discrepancies,
				rec.ID,
				rec.FileName,
				d.Field,
				d.InvoiceValue,
				d.ContractValue,
				string(d.Severity),
				string(d.Source),
				d.Note,
			)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().Value = v
	}
}

func init() {
	recordsExportCmd.Flags().StringVar(&exportOut, "out", "reconciliation.xlsx", "output workbook path")
}
