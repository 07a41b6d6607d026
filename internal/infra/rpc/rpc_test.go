package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vietddude/keeper/internal/infra/rpc/provider"
)

// MockProvider implements RPCProvider for routing tests
type MockProvider struct {
	name        string
	unavailable bool
	callCount   int
}

func (m *MockProvider) GetName() string                  { return m.name }
func (m *MockProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{} }
func (m *MockProvider) IsAvailable() bool                { return !m.unavailable }
func (m *MockProvider) Close() error                     { return nil }

func (m *MockProvider) Execute(ctx context.Context, op provider.Operation) (json.RawMessage, error) {
	return m.Call(ctx, op.Name, op.Params)
}

func (m *MockProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	m.callCount++
	return json.RawMessage(`"` + m.name + `"`), nil
}

func (m *MockProvider) BatchCall(
	ctx context.Context,
	requests []provider.BatchRequest,
) ([]provider.BatchResponse, error) {
	m.callCount++
	return make([]provider.BatchResponse, len(requests)), nil
}

func TestClient_RoundRobin(t *testing.T) {
	a := &MockProvider{name: "a"}
	b := &MockProvider{name: "b"}
	c := NewClient(a, b)

	for i := 0; i < 4; i++ {
		if _, err := c.Call(context.Background(), "eth_blockNumber", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if a.callCount != 2 || b.callCount != 2 {
		t.Errorf("expected 2 calls each, got a=%d b=%d", a.callCount, b.callCount)
	}
}

func TestClient_SkipsUnavailable(t *testing.T) {
	a := &MockProvider{name: "a", unavailable: true}
	b := &MockProvider{name: "b"}
	c := NewClient(a, b)

	for i := 0; i < 3; i++ {
		raw, err := c.Call(context.Background(), "eth_blockNumber", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(raw) != `"b"` {
			t.Errorf("expected b, got %s", raw)
		}
	}
	if a.callCount != 0 {
		t.Errorf("unavailable provider was called %d times", a.callCount)
	}
}

func TestClient_NoProvider(t *testing.T) {
	c := NewClient(&MockProvider{name: "a", unavailable: true})
	if _, err := c.Call(context.Background(), "eth_blockNumber", nil); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
}
