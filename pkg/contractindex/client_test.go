package contractindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/resilience"
)

func TestQuery_Success(t *testing.T) {
	t.Parallel()

	want := QueryResponse{
		Nodes: []Node{
			{
				ID:    "contract-1",
				Score: 0.92,
				Text:  "Master Services Agreement between Acme Co and ...",
				Metadata: NodeMetadata{
					FileName:     "acme_msa.pdf",
					VendorName:   "Acme Co",
					PONumber:     "PO-100",
					PaymentTerms: "Net 45",
				},
			},
			{ID: "contract-2", Score: 0.41, Text: "Supply agreement ..."},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contracts", req.Index)
		assert.Equal(t, 3, req.TopK)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Query(context.Background(), QueryRequest{
		Index: "contracts",
		Query: "vendor: Acme Co PO: PO-100",
		TopK:  3,
	})

	require.NoError(t, err)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "contract-1", got.Nodes[0].ID)
	assert.Equal(t, "Net 45", got.Nodes[0].Metadata.PaymentTerms)
}

func TestQuery_EmptyIndexIs404(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"index not found"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Query(context.Background(), QueryRequest{Index: "contracts", Query: "x", TopK: 3})

	require.NoError(t, err)
	assert.Empty(t, got.Nodes)
}

func TestQuery_BadRequestIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"missing query"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Query(context.Background(), QueryRequest{Index: "contracts"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestQuery_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Query(context.Background(), QueryRequest{Index: "contracts", Query: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestQuery_ExhaustedTransientStatusIsClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"index overloaded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Query(context.Background(), QueryRequest{Index: "contracts", Query: "x", TopK: 1})

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "503")
}

func TestQuery_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{Nodes: []Node{{ID: "contract-1", Score: 1}}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Query(context.Background(), QueryRequest{Index: "contracts", Query: "x", TopK: 1})

	require.NoError(t, err)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, int32(3), calls.Load())
}
