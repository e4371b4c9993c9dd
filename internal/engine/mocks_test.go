package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetUser(ctx context.Context, userID string) (*dispatch.UserRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.UserRecord), args.Error(1)
}

func (m *mockDirectory) LookupByIDs(ctx context.Context, userIDs []string) ([]dispatch.UserRecord, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dispatch.UserRecord), args.Error(1)
}

func (m *mockDirectory) LookupByToken(ctx context.Context, token string, limit int) ([]dispatch.UserRecord, error) {
	args := m.Called(ctx, token, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dispatch.UserRecord), args.Error(1)
}

func (m *mockDirectory) ClearToken(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) GetRole(ctx context.Context, roleID string) (*dispatch.RoleRecord, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.RoleRecord), args.Error(1)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Append(ctx context.Context, entry dispatch.AuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}

// fakeGateway records every call and answers from a script keyed by call
// number. Unscripted multicast calls succeed for every token.
type fakeGateway struct {
	mu          sync.Mutex
	calls       [][]string
	topicCalls  []string
	lastMessage *dispatch.Message
	failOnCall  int
	failWith    error
	failTokens  map[string]string
	topicErr    error
}

func (g *fakeGateway) SendMulticast(_ context.Context, msg *dispatch.Message, tokens []string) ([]dispatch.TokenOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]string(nil), tokens...))
	g.lastMessage = msg
	if g.failOnCall > 0 && len(g.calls) == g.failOnCall {
		return nil, g.failWith
	}
	outcomes := make([]dispatch.TokenOutcome, len(tokens))
	for i, t := range tokens {
		if code, ok := g.failTokens[t]; ok {
			outcomes[i] = dispatch.TokenOutcome{ErrorCode: code, Error: "delivery failed"}
			continue
		}
		outcomes[i] = dispatch.TokenOutcome{Success: true, MessageID: "msg-" + t}
	}
	return outcomes, nil
}

func (g *fakeGateway) SendToTopic(_ context.Context, msg *dispatch.Message, topic string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topicCalls = append(g.topicCalls, topic)
	g.lastMessage = msg
	if g.topicErr != nil {
		return "", g.topicErr
	}
	return "topic-msg-1", nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls) + len(g.topicCalls)
}
