// Package rpc provides the JSON-RPC client used by the chain adapters.
//
// A Client holds one or more providers for the same chain and sends each call
// to the first available one, rotating the starting point round-robin.
// A failed call is not retried on another provider.
//
// # Quick Start
//
//	client := rpc.NewClient(
//	    provider.NewHTTPProvider("primary", primaryURL, 30*time.Second),
//	    provider.NewHTTPProvider("backup", backupURL, 30*time.Second),
//	)
//	raw, err := client.Call(ctx, "eth_blockNumber", nil)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/vietddude/keeper/internal/infra/rpc/provider"
)

// ErrNoProvider is returned when every provider is throttled or blocked.
var ErrNoProvider = errors.New("no available provider")

// RPCProvider extends Provider with methods for making JSON-RPC calls.
type RPCProvider interface {
	provider.Provider

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// BatchCall makes multiple RPC calls in one request
	BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error)
}

// Client routes calls across providers of one chain.
type Client struct {
	providers []RPCProvider
	next      atomic.Uint64
}

// NewClient creates a new RPC client.
func NewClient(providers ...RPCProvider) *Client {
	return &Client{providers: providers}
}

func (c *Client) pick() (RPCProvider, error) {
	n := len(c.providers)
	if n == 0 {
		return nil, ErrNoProvider
	}
	start := int(c.next.Add(1)-1) % n
	for i := 0; i < n; i++ {
		p := c.providers[(start+i)%n]
		if p.IsAvailable() {
			return p, nil
		}
	}
	return nil, ErrNoProvider
}

// Call makes a single JSON-RPC request.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	p, err := c.pick()
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, method, params)
}

// BatchCall makes several JSON-RPC requests in one round trip.
func (c *Client) BatchCall(
	ctx context.Context,
	requests []provider.BatchRequest,
) ([]provider.BatchResponse, error) {
	p, err := c.pick()
	if err != nil {
		return nil, err
	}
	return p.BatchCall(ctx, requests)
}

// Providers returns the configured providers, for health reporting.
func (c *Client) Providers() []RPCProvider {
	return c.providers
}

// Close closes every provider.
func (c *Client) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
