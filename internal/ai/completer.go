// Package ai provides completion clients for the AI enhancement stage:
// an Anthropic API backend, a JSON-RPC backend for self-hosted gateways,
// and a circuit breaker wrapper usable around either.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable marks a completion backend that is not configured or not
// reachable. The pipeline degrades the AI stage to skipped on it.
var ErrUnavailable = errors.New("ai completion unavailable")

// CompletionRequest is one prompt sent to a completion backend.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CompletionResponse is the backend's reply.
type CompletionResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Completer is the completion backend contract.
// Implementations: AnthropicCompleter, RemoteCompleter, BreakerCompleter.
type Completer interface {
	// Name identifies the backend for logs and breaker naming.
	Name() string

	// Complete sends one prompt and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
