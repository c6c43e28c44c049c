package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter fails a fixed number of times before succeeding.
type scriptedCompleter struct {
	calls    int
	failures int
	err      error
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	s.calls++
	if s.calls <= s.failures {
		if s.err != nil {
			return nil, s.err
		}
		return nil, errors.New("backend exploded")
	}
	return &CompletionResponse{Text: "ok", Model: "scripted-1"}, nil
}

func TestRemoteCompleter_Complete(t *testing.T) {
	var gotReq jsonRPCRequest
	var gotParams remoteParams

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.Unmarshal(gotReq.Params, &gotParams))

		result := remoteResult{Text: "looks fine to me", Model: "gateway-v2"}
		result.Usage.InputTokens = 42
		result.Usage.OutputTokens = 7
		raw, err := json.Marshal(result)
		require.NoError(t, err)

		resp := jsonRPCResponse{JSONRPC: jsonRPCVersion, ID: gotReq.ID, Result: raw}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewRemoteCompleter(srv.URL)
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:    "you review code",
		Prompt:    "review this",
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, jsonRPCVersion, gotReq.JSONRPC)
	assert.Equal(t, methodComplete, gotReq.Method)
	assert.Equal(t, int64(1), gotReq.ID)
	assert.Equal(t, "you review code", gotParams.System)
	assert.Equal(t, "review this", gotParams.Prompt)
	assert.Equal(t, 256, gotParams.MaxTokens)

	assert.Equal(t, "looks fine to me", resp.Text)
	assert.Equal(t, "gateway-v2", resp.Model)
	assert.Equal(t, int64(42), resp.Usage.InputTokens)
	assert.Equal(t, int64(7), resp.Usage.OutputTokens)
}

func TestRemoteCompleter_RequestIDsIncrement(t *testing.T) {
	var ids []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)

		raw, _ := json.Marshal(remoteResult{Text: "ok"})
		resp := jsonRPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: raw}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewRemoteCompleter(srv.URL)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestRemoteCompleter_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := jsonRPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Error:   &jsonRPCError{Code: -32000, Message: "model overloaded"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewRemoteCompleter(srv.URL)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Contains(t, err.Error(), "-32000")
}

func TestRemoteCompleter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewRemoteCompleter(srv.URL)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestRemoteCompleter_RequiresEndpoint(t *testing.T) {
	_, err := NewRemoteCompleter("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnthropicCompleter_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicCompleter("", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerCompleter_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &scriptedCompleter{failures: 1000}
	b := NewBreakerCompleter(inner, nil)

	for i := 0; i < breakerTripFailures; i++ {
		_, err := b.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable, "call %d should reach the backend", i)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	// Open breaker fails fast without touching the backend.
	before := inner.calls
	_, err := b.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, inner.calls)
}

func TestBreakerCompleter_RecoversOnSuccess(t *testing.T) {
	inner := &scriptedCompleter{failures: 2}
	b := NewBreakerCompleter(inner, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateClosed, b.State(), "two failures stay under the trip threshold")

	resp, err := b.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerCompleter_ContextCancelNotAFailure(t *testing.T) {
	inner := &scriptedCompleter{failures: 1000, err: fmt.Errorf("complete: %w", context.Canceled)}
	b := NewBreakerCompleter(inner, nil)

	for i := 0; i < breakerTripFailures*2; i++ {
		_, err := b.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State(), "cancellations must not trip the breaker")
}

func TestBreakerCompleter_Name(t *testing.T) {
	b := NewBreakerCompleter(&scriptedCompleter{}, nil)
	assert.Equal(t, "scripted", b.Name())
}
