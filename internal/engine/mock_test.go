package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
	"github.com/sells-group/reconcile-cli/pkg/contractindex"
)

// --- Index Mock ---

type mockIndexClient struct {
	mock.Mock
}

func (m *mockIndexClient) Query(ctx context.Context, req contractindex.QueryRequest) (*contractindex.QueryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contractindex.QueryResponse), args.Error(1)
}

var _ contractindex.Client = (*mockIndexClient)(nil)

// --- Anthropic Mock ---

type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

var _ anthropic.Client = (*mockAIClient)(nil)

// textResponse wraps raw text in a message response the way the API returns it.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertRecord(ctx context.Context, rec *model.ReconciliationRecord) (*model.ReconciliationRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationRecord), args.Error(1)
}

func (m *mockStore) GetRecord(ctx context.Context, id string) (*model.ReconciliationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationRecord), args.Error(1)
}

func (m *mockStore) GetByHash(ctx context.Context, fileHash string) (*model.ReconciliationRecord, error) {
	args := m.Called(ctx, fileHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationRecord), args.Error(1)
}

func (m *mockStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]model.ReconciliationRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ReconciliationRecord), args.Error(1)
}

func (m *mockStore) DeleteRecord(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) ReviewRecord(ctx context.Context, id string, reviewedBy string) error {
	args := m.Called(ctx, id, reviewedBy)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.Store = (*mockStore)(nil)
