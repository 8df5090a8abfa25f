package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

var (
	reconcileFileID   string
	reconcileFileHash string
	reconcileSource   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <invoice.json> [invoice.json...]",
	Short: "Reconcile extracted invoices against the contract index",
	Long:  "Each argument is an extracted-invoice JSON file. The source document bytes are hashed with SHA-256 for deduplication; re-running the same file replaces its stored record.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(args) > 1 && (reconcileFileID != "" || reconcileFileHash != "" || reconcileSource != "") {
			return eris.New("--file-id, --file-hash and --source apply to a single input file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		eng := newEngine(st)

		results := make([]*model.ReconciliationRecord, len(args))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Reconcile.MaxConcurrentFiles)

		for i, path := range args {
			i, path := i, path
			g.Go(func() error {
				in, err := loadReconcileInput(path)
				if err != nil {
					return err
				}

				rec, err := eng.Reconcile(gctx, in)
				if err != nil {
					if resilience.IsRetryable(err) {
						zap.L().Warn("run is safe to re-submit", zap.String("file", path))
					}
					return eris.Wrapf(err, "reconcile %s", path)
				}

				results[i] = rec
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

// loadReconcileInput reads one extracted-invoice JSON file and assembles the
// engine input. The dedup hash covers the source document when --source is
// given, otherwise the invoice JSON bytes themselves; --file-hash overrides
// both for callers that already track upload hashes.
func loadReconcileInput(path string) (engine.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Input{}, eris.Wrapf(err, "read invoice %s", path)
	}

	var invoice model.InvoiceRecord
	if err := json.Unmarshal(data, &invoice); err != nil {
		return engine.Input{}, eris.Wrapf(err, "parse invoice %s", path)
	}

	fileName := filepath.Base(path)
	hashed := data
	if reconcileSource != "" {
		fileName = filepath.Base(reconcileSource)
		hashed, err = os.ReadFile(reconcileSource)
		if err != nil {
			return engine.Input{}, eris.Wrapf(err, "read source %s", reconcileSource)
		}
	}

	fileHash := reconcileFileHash
	if fileHash == "" {
		sum := sha256.Sum256(hashed)
		fileHash = hex.EncodeToString(sum[:])
	}

	return engine.Input{
		FileID:   reconcileFileID,
		FileName: fileName,
		FileHash: fileHash,
		Invoice:  invoice,
	}, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileFileID, "file-id", "", "identifier of the source file in the upload store")
	reconcileCmd.Flags().StringVar(&reconcileFileHash, "file-hash", "", "explicit dedup hash (default: sha256 of the invoice JSON or --source file)")
	reconcileCmd.Flags().StringVar(&reconcileSource, "source", "", "source document to hash instead of the invoice JSON")
	rootCmd.AddCommand(reconcileCmd)
}
