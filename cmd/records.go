package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var (
	recordsStatus   string
	recordsVendor   string
	recordsLimit    int
	recordsOffset   int
	recordsByHash   bool
	recordsReviewer string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and manage stored reconciliation records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records, optionally filtered",
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

		return printJSON(recs)
	},
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id|file-hash>",
	Short: "Print one record by id, or by file hash with --by-hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if recordsByHash {
			rec, err := st.GetByHash(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "get record by hash %s", args[0])
			}
			if rec == nil {
				return eris.Errorf("no record stored for file hash %s", args[0])
			}
			return printJSON(rec)
		}

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get record %s", args[0])
		}

		return printJSON(rec)
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one record by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteRecord(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "delete record %s", args[0])
		}

		zap.L().Info("record deleted", zap.String("id", args[0]))
		return nil
	},
}

var recordsReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Mark a record as reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ReviewRecord(ctx, args[0], recordsReviewer); err != nil {
			return eris.Wrapf(err, "review record %s", args[0])
		}

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get record %s", args[0])
		}

		return printJSON(rec)
	},
}

func buildRecordFilter() (store.RecordFilter, error) {
	status := model.MatchStatus(recordsStatus)
	switch status {
	case "", model.MatchStatusMatched, model.MatchStatusNone:
	default:
		return store.RecordFilter{}, eris.Errorf("unknown status %q (want matched or no_match)", recordsStatus)
	}

	return store.RecordFilter{
		Status:     status,
		VendorName: recordsVendor,
		Limit:      recordsLimit,
		Offset:     recordsOffset,
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{recordsListCmd, recordsExportCmd} {
		c.Flags().StringVar(&recordsStatus, "status", "", "filter by match status (matched or no_match)")
		c.Flags().StringVar(&recordsVendor, "vendor", "", "filter by invoice vendor name")
		c.Flags().IntVar(&recordsLimit, "limit", 0, "maximum records to return (0 = all)")
		c.Flags().IntVar(&recordsOffset, "offset", 0, "records to skip")
	}
	recordsGetCmd.Flags().BoolVar(&recordsByHash, "by-hash", false, "look up by file hash instead of record id")
	recordsReviewCmd.Flags().StringVar(&recordsReviewer, "by", "", "reviewer name (required)")
	_ = recordsReviewCmd.MarkFlagRequired("by")

	recordsCmd.AddCommand(recordsListCmd, recordsGetCmd, recordsDeleteCmd, recordsReviewCmd, recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}
