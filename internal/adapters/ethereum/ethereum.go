// Package ethereum is the account-based EVM adapter: a Provider backed by
// an Etherscan-compatible explorer REST API plus a raw JSON-RPC endpoint
// for block lookups, and the Importer/Processor pair the registry wires
// them behind.
//
// Grounded on the teacher's internal/provider/alchemy package (same
// base-URL + API-key construction, same httpjsonrpc.Client for the
// JSON-RPC half) and internal/services/address's go-ethereum/common usage
// for hex-address handling.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/provider/httpjsonrpc"
)

// ExplorerProvider implements provider.Provider against an
// Etherscan-family explorer (normal + internal + ERC-20 token transaction
// list endpoints) plus an httpjsonrpc.Client for JSON-RPC block data.
type ExplorerProvider struct {
	name       string
	explorerURL string
	apiKey     string
	rpc        *httpjsonrpc.Client
	http       *http.Client
}

// NewExplorerProvider builds a Provider named name, querying explorerURL
// (an Etherscan-API-shaped REST endpoint) and rpcURL (JSON-RPC).
func NewExplorerProvider(name, explorerURL, rpcURL, apiKey string) *ExplorerProvider {
	return &ExplorerProvider{
		name:        name,
		explorerURL: explorerURL,
		apiKey:      apiKey,
		rpc:         httpjsonrpc.NewClient(name, rpcURL),
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ExplorerProvider) Name() string { return p.name }

func (p *ExplorerProvider) Capabilities() map[provider.Operation]struct{} {
	return map[provider.Operation]struct{}{
		provider.OpGetAddressTransactions:         {},
		provider.OpGetAddressInternalTransactions: {},
		provider.OpGetAddressTokenTransactions:    {},
		provider.OpGetBlockByHeight:               {},
	}
}

func (p *ExplorerProvider) IsHealthy(ctx context.Context) (bool, error) {
	_, err := p.rpc.Call(ctx, "eth_blockNumber", []any{})
	return err == nil, err
}

// explorerAction maps an Operation to the Etherscan-compatible "action"
// query parameter.
var explorerAction = map[provider.Operation]string{
	provider.OpGetAddressTransactions:         "txlist",
	provider.OpGetAddressInternalTransactions: "txlistinternal",
	provider.OpGetAddressTokenTransactions:    "tokentx",
}

func (p *ExplorerProvider) Execute(ctx context.Context, op provider.Operation, args provider.Args) (any, error) {
	if op == provider.OpGetBlockByHeight {
		return p.getBlockByHeight(ctx, args.Height)
	}

	action, ok := explorerAction[op]
	if !ok {
		return nil, provider.NewProviderError("UNSUPPORTED_OPERATION", fmt.Sprintf("operation %s not supported", op), p.name, false, nil)
	}
	return p.listTransactions(ctx, action, args)
}

// ExplorerTx is one row of an Etherscan-family transaction-list response.
type ExplorerTx struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasUsed     string `json:"gasUsed"`
	GasPrice    string `json:"gasPrice"`
	IsError     string `json:"isError"`
	TokenSymbol string `json:"tokenSymbol,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

type explorerListResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Result  []ExplorerTx `json:"result"`
}

func (p *ExplorerProvider) listTransactions(ctx context.Context, action string, args provider.Args) ([]ExplorerTx, error) {
	startBlock := "0"
	if args.Cursor != "" {
		startBlock = args.Cursor
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 1000
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", args.Address)
	q.Set("startblock", startBlock)
	q.Set("endblock", "99999999")
	q.Set("sort", "asc")
	q.Set("offset", strconv.Itoa(limit))
	q.Set("page", "1")
	if p.apiKey != "" {
		q.Set("apikey", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.explorerURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ethereum: build request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, provider.NewProviderError("HTTP_ERROR", err.Error(), p.name, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ethereum: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewProviderError("HTTP_ERROR", fmt.Sprintf("HTTP %d", resp.StatusCode), p.name, resp.StatusCode >= 500, nil)
	}

	var parsed explorerListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ethereum: parse response: %w", err)
	}
	if parsed.Status == "0" && parsed.Message != "No transactions found" {
		return nil, provider.NewProviderError("EXPLORER_ERROR", parsed.Message, p.name, true, nil)
	}
	return parsed.Result, nil
}

type rpcBlock struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

func (p *ExplorerProvider) getBlockByHeight(ctx context.Context, height uint64) (*rpcBlock, error) {
	raw, err := p.rpc.Call(ctx, "eth_getBlockByNumber", []any{fmt.Sprintf("0x%x", height), false})
	if err != nil {
		return nil, err
	}
	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("ethereum: parse block: %w", err)
	}
	return &block, nil
}

// weiToEther converts a base-10 wei string to an 18-decimal ether amount
// using money.Decimal throughout (never float64). Empty or unparseable
// input, including 0x-prefixed hex, yields Zero.
func weiToEther(hexValue string) money.Decimal {
	if hexValue == "" {
		return money.Zero
	}
	wei, err := money.ParseDecimal(hexValue)
	if err != nil {
		// value arrives as a base-10 decimal string from explorer APIs
		// (unlike JSON-RPC's 0x-hex), which is the common case here.
		return money.Zero
	}
	return wei.Divide(money.MustParseDecimal("1000000000000000000"))
}
