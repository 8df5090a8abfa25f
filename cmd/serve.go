package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/engine"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation webhook and records API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		eng := newEngine(st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctx, st, eng, cfg.Store.Collection),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the HTTP surface. The engine may be nil, in which
// case webhook submissions are accepted but skipped, so the records API can
// run without upstream credentials.
func buildRouter(ctx context.Context, st store.Store, eng *engine.Engine, collection string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/schema", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, model.DescribeRecordSchema(collection))
	})

	r.Post("/webhook/reconcile", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			FileID   string              `json:"file_id"`
			FileName string              `json:"file_name"`
			FileHash string              `json:"file_hash"`
			Invoice  model.InvoiceRecord `json:"invoice"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if body.FileHash == "" {
			http.Error(w, `{"error":"file_hash is required"}`, http.StatusBadRequest)
			return
		}

		// Run reconciliation asynchronously
		go func() {
			if eng == nil {
				return
			}
			rec, err := eng.Reconcile(ctx, engine.Input{
				FileID:   body.FileID,
				FileName: body.FileName,
				FileHash: body.FileHash,
				Invoice:  body.Invoice,
			})
			if err != nil {
				zap.L().Error("webhook reconciliation failed",
					zap.String("file_hash", body.FileHash),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook reconciliation complete",
				zap.String("file_hash", body.FileHash),
				zap.String("record_id", rec.ID),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "accepted",
			"file_hash": body.FileHash,
		})
	})

	r.Route("/records", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			filter, err := parseRecordFilter(req)
			if err != nil {
				http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
				return
			}

			recs, err := st.ListRecords(req.Context(), filter)
			if err != nil {
				serverError(w, "list records", err)
				return
			}
			writeJSON(w, http.StatusOK, recs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			rec, err := st.GetRecord(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				notFoundOrServerError(w, "get record", err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := st.DeleteRecord(req.Context(), chi.URLParam(req, "id")); err != nil {
				notFoundOrServerError(w, "delete record", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		})

		r.Post("/{id}/review", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				ReviewedBy string `json:"reviewed_by"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if body.ReviewedBy == "" {
				http.Error(w, `{"error":"reviewed_by is required"}`, http.StatusBadRequest)
				return
			}

			id := chi.URLParam(req, "id")
			if err := st.ReviewRecord(req.Context(), id, body.ReviewedBy); err != nil {
				notFoundOrServerError(w, "review record", err)
				return
			}

			rec, err := st.GetRecord(req.Context(), id)
			if err != nil {
				serverError(w, "get record", err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
	})

	return r
}

func parseRecordFilter(req *http.Request) (store.RecordFilter, error) {
	q := req.URL.Query()

	status := model.MatchStatus(q.Get("status"))
	switch status {
	case "", model.MatchStatusMatched, model.MatchStatusNone:
	default:
		return store.RecordFilter{}, eris.Errorf("unknown status %q", string(status))
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	return store.RecordFilter{
		Status:     status,
		VendorName: q.Get("vendor"),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op, zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func notFoundOrServerError(w http.ResponseWriter, op string, err error) {
	if eris.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"record not found"}`, http.StatusNotFound)
		return
	}
	serverError(w, op, err)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
