// Package httpjsonrpc is the shared JSON-RPC-over-HTTP transport used by
// the EVM-family blockchain adapters (internal/adapters/ethereum and any
// future Alchemy/Infura-style provider).
//
// Generalized from the teacher's internal/provider/alchemy.rpcCall: the
// same request/response envelope and error classification (HTTP 5xx and
// JSON-RPC server-error codes are retryable; everything else is not), but
// extracted from a single provider's method set into a reusable client any
// adapter can embed.
package httpjsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourusername/ledgerflow/internal/provider"
)

// Client performs JSON-RPC 2.0 calls over HTTP.
type Client struct {
	BaseURL      string
	ProviderName string
	HTTP         *http.Client
}

// NewClient builds a Client with a sane default timeout, matching the
// teacher's alchemy.NewAlchemyProvider default of 30s.
func NewClient(providerName, baseURL string) *Client {
	return &Client{
		BaseURL:      baseURL,
		ProviderName: providerName,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs one JSON-RPC request and returns the raw "result" field,
// wrapping transport/protocol errors as *provider.ProviderError with the
// same retryability rules the teacher's rpcCall applies.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("httpjsonrpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpjsonrpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, provider.NewProviderError("RPC_ERROR", fmt.Sprintf("RPC call failed: %v", err), c.ProviderName, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpjsonrpc: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewProviderError("HTTP_ERROR", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)), c.ProviderName, resp.StatusCode >= 500, nil)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("httpjsonrpc: parse response: %w", err)
	}

	if parsed.Error != nil {
		retryable := parsed.Error.Code >= -32099 && parsed.Error.Code <= -32000
		return nil, provider.NewProviderError("RPC_ERROR", parsed.Error.Message, c.ProviderName, retryable, nil)
	}
	return parsed.Result, nil
}
