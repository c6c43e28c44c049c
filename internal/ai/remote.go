package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// jsonRPCVersion is the JSON-RPC protocol version.
const jsonRPCVersion = "2.0"

// methodComplete is the completion method on remote model gateways.
const methodComplete = "completion/complete"

// jsonRPCRequest is a JSON-RPC 2.0 request envelope.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonRPCResponse is a JSON-RPC 2.0 response envelope.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// jsonRPCError is a JSON-RPC 2.0 error object.
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// remoteParams is the completion/complete params shape.
type remoteParams struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// remoteResult is the completion/complete result shape.
type remoteResult struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage struct {
		InputTokens  int64 `json:"inputTokens"`
		OutputTokens int64 `json:"outputTokens"`
	} `json:"usage"`
}

// RemoteCompleter talks JSON-RPC 2.0 to a self-hosted model gateway.
type RemoteCompleter struct {
	endpoint  string
	http      *http.Client
	requestID atomic.Int64
}

var _ Completer = (*RemoteCompleter)(nil)

// RemoteOption configures a RemoteCompleter.
type RemoteOption func(*RemoteCompleter)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(c *RemoteCompleter) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(c *RemoteCompleter) {
		c.http = hc
	}
}

// NewRemoteCompleter builds a completer for the gateway at endpoint.
func NewRemoteCompleter(endpoint string, opts ...RemoteOption) (*RemoteCompleter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote completer: %w: endpoint not set", ErrUnavailable)
	}
	c := &RemoteCompleter{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements Completer.
func (c *RemoteCompleter) Name() string { return "remote" }

// Complete implements Completer.
func (c *RemoteCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var result remoteResult
	params := remoteParams{System: req.System, Prompt: req.Prompt, MaxTokens: req.MaxTokens}
	if err := c.call(ctx, methodComplete, params, &result); err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Text:  result.Text,
		Model: result.Model,
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
	}, nil
}

func (c *RemoteCompleter) nextID() int64 {
	return c.requestID.Add(1)
}

// call performs a JSON-RPC 2.0 call over HTTP POST.
func (c *RemoteCompleter) call(ctx context.Context, method string, params any, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("ai: marshal params: %w", err)
	}

	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID(),
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("ai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ai: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai: %s: HTTP %d: %s", method, resp.StatusCode, string(respBody))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("ai: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ai: %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("ai: decode result: %w", err)
		}
	}
	return nil
}
