package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrThrottled is returned while the endpoint is rate limiting or blocking us.
var ErrThrottled = errors.New("provider throttled")

// HTTPProvider implements Provider for JSON-RPC and REST over HTTP.
type HTTPProvider struct {
	*BaseProvider

	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewHTTPProvider creates a new HTTP-based provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Execute dispatches the operation as JSON-RPC or REST.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	if op.IsREST {
		return p.Get(ctx, op.Name)
	}
	return p.Call(ctx, op.Name, op.Params)
}

// Call makes a single JSON-RPC call and returns the raw result.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := p.post(ctx, method, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      p.nextID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.Error != nil {
		if p.Monitor.DetectThrottlePattern(resp.Error.Message) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests)
		}
		p.RecordFailure(method)
		return nil, resp.Error
	}

	return resp.Result, nil
}

// BatchCall makes multiple JSON-RPC calls in one request. Responses are
// returned in request order regardless of the order the node answers in.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	const method = "batch"

	first := p.nextID.Add(uint64(len(requests))) - uint64(len(requests)) + 1
	batch := make([]rpcRequest, len(requests))
	for i, req := range requests {
		params := req.Params
		if params == nil {
			params = []any{}
		}
		batch[i] = rpcRequest{JSONRPC: "2.0", Method: req.Method, Params: params, ID: first + uint64(i)}
	}

	body, err := p.post(ctx, method, batch)
	if err != nil {
		return nil, err
	}

	var raw []rpcResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("parse batch response: %w", err)
	}

	responses := make([]BatchResponse, len(requests))
	seen := 0
	for _, r := range raw {
		idx := int(r.ID - first)
		if r.ID < first || idx >= len(requests) {
			continue
		}
		seen++
		if r.Error != nil {
			responses[idx] = BatchResponse{Error: r.Error}
		} else {
			responses[idx] = BatchResponse{Result: r.Result}
		}
	}
	if seen != len(requests) {
		p.RecordFailure(method)
		return nil, fmt.Errorf("batch response has %d of %d results", seen, len(requests))
	}

	return responses, nil
}

// Get issues a REST GET on path relative to the endpoint.
func (p *HTTPProvider) Get(ctx context.Context, path string) (json.RawMessage, error) {
	method := "GET " + firstSegment(path)
	start := time.Now()

	if err := p.checkStatus(); err != nil {
		return nil, err
	}

	url := p.endpoint + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req, method)
	if err != nil {
		return nil, err
	}

	p.RecordSuccess(method, time.Since(start))
	return body, nil
}

func (p *HTTPProvider) post(ctx context.Context, method string, payload any) ([]byte, error) {
	start := time.Now()

	if err := p.checkStatus(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req, method)
	if err != nil {
		return nil, err
	}

	p.RecordSuccess(method, time.Since(start))
	return body, nil
}

func (p *HTTPProvider) do(req *http.Request, method string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	// Rate limit / IP block detection
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.RecordFailure(method)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.RecordFailure(method)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func (p *HTTPProvider) checkStatus() error {
	switch p.Monitor.CheckProviderStatus() {
	case StatusThrottled, StatusBlocked:
		return fmt.Errorf("%w: %s", ErrThrottled, p.Name)
	}
	return nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func firstSegment(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
