// Package provider implements the HTTP transport shared by chain and randomness clients.
//
// This package contains:
//   - Provider interface: health and lifecycle of an endpoint
//   - HTTPProvider: JSON-RPC 2.0 and plain REST GET over HTTP
//   - ProviderMonitor: throttle detection and latency tracking
//
// Providers never retry. A failed call is reported to the caller, which decides
// whether the failure ends the invocation.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation represents a request to execute against a provider.
type Operation struct {
	// Name is the JSON-RPC method, or the URL path for REST calls
	Name string

	// Params for JSON-RPC calls
	Params []any

	// IsREST issues a GET on Name relative to the endpoint instead of a JSON-RPC POST
	IsREST bool
}

// Provider defines the core interface for any endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "chain", "drand")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Execute performs the operation with monitoring and error handling
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)

	// Close cleans up resources
	Close() error
}

// BatchRequest represents a single request in a batch call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response from a batch call.
type BatchResponse struct {
	Result json.RawMessage
	Error  error
}

// RPCError is a JSON-RPC error object returned by the node.
// Data carries revert payloads for eth_call.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is returned for non-2xx REST responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
