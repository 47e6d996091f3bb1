// Package bitcoin is the UTXO-model blockchain adapter: a Provider backed
// by a Blockstream-Esplora-style REST API, and the Importer/Processor pair
// the registry wires behind it.
//
// Grounded on the teacher's internal/services/address package (btcutil
// address handling — reused directly in this package's address.go) for the
// chain's conventions, generalized here into a read-only explorer client
// since the teacher itself only ever builds/signs transactions, never
// lists historical ones.
package bitcoin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/provider"
)

// ExplorerProvider implements provider.Provider against an Esplora-style
// REST API (GET /address/:addr/txs, paged by a "last seen txid").
type ExplorerProvider struct {
	name    string
	baseURL string
	http    *http.Client
}

func NewExplorerProvider(name, baseURL string) *ExplorerProvider {
	return &ExplorerProvider{name: name, baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (p *ExplorerProvider) Name() string { return p.name }

func (p *ExplorerProvider) Capabilities() map[provider.Operation]struct{} {
	return map[provider.Operation]struct{}{provider.OpGetAddressTransactions: {}}
}

func (p *ExplorerProvider) IsHealthy(ctx context.Context) (bool, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/blocks/tip/height", nil)
	resp, err := p.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Vin/Vout/EsploraTx mirror the subset of Esplora's transaction schema the
// matching pipeline needs: inputs/outputs with their owning addresses and
// values (denominated in satoshis).
type Vin struct {
	Prevout struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"prevout"`
}

type Vout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type EsploraTx struct {
	TxID   string `json:"txid"`
	Vin    []Vin  `json:"vin"`
	Vout   []Vout `json:"vout"`
	Fee    int64  `json:"fee"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockTime   int64 `json:"block_time"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

func (p *ExplorerProvider) Execute(ctx context.Context, op provider.Operation, args provider.Args) (any, error) {
	if op != provider.OpGetAddressTransactions {
		return nil, provider.NewProviderError("UNSUPPORTED_OPERATION", fmt.Sprintf("operation %s not supported", op), p.name, false, nil)
	}

	path := fmt.Sprintf("%s/address/%s/txs", p.baseURL, args.Address)
	if args.Cursor != "" {
		path = fmt.Sprintf("%s/chain/%s", path, args.Cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: build request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, provider.NewProviderError("HTTP_ERROR", err.Error(), p.name, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewProviderError("HTTP_ERROR", fmt.Sprintf("HTTP %d", resp.StatusCode), p.name, resp.StatusCode >= 500, nil)
	}

	var txs []EsploraTx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("bitcoin: parse response: %w", err)
	}
	return txs, nil
}

// satsToBTC converts an integer satoshi amount to a BTC money.Decimal.
func satsToBTC(sats int64) money.Decimal {
	return money.NewFromInt(sats).Divide(money.NewFromInt(100_000_000))
}

func contentHash(txid string) string {
	sum := sha256.Sum256([]byte(txid))
	return hex.EncodeToString(sum[:])
}
