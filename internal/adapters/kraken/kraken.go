// Package kraken is an exchange-API adapter: a Provider backed by
// Kraken's authenticated REST API (Ledgers endpoint), and the
// Importer/Processor pair the registry wires behind it.
//
// Grounded on the teacher's credential-handling conventions (API
// key/secret passed through opaque config, never logged) generalized from
// wallet-signing credentials to exchange API credentials; the HMAC request
// signing follows the same "sign over path+body" shape Kraken's public
// docs describe and which the teacher's own request-signing code (for
// transaction signing) mirrors structurally.
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/ledgerflow/internal/provider"
)

const krakenBaseURL = "https://api.kraken.com"

// Credentials is the exchange API key/secret pair, supplied via
// domain.ImportParams.Credentials rather than stored on the Provider.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Ledgers implements provider.Provider against Kraken's private Ledgers
// endpoint, which returns deposit/withdrawal/trade ledger entries paged by
// an opaque offset.
type Ledgers struct {
	http *http.Client
}

func NewLedgers() *Ledgers {
	return &Ledgers{http: &http.Client{Timeout: 30 * time.Second}}
}

func (l *Ledgers) Name() string { return "kraken" }

func (l *Ledgers) Capabilities() map[provider.Operation]struct{} {
	return map[provider.Operation]struct{}{provider.OpGetAddressBalances: {}}
}

func (l *Ledgers) IsHealthy(ctx context.Context) (bool, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, krakenBaseURL+"/0/public/Time", nil)
	resp, err := l.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// LedgerEntry is one row of Kraken's Ledgers response.
type LedgerEntry struct {
	RefID   string `json:"refid"`
	Time    float64 `json:"time"`
	Type    string `json:"type"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Fee     string `json:"fee"`
	Balance string `json:"balance"`
}

type ledgersResult struct {
	Ledger map[string]LedgerEntry `json:"ledger"`
	Count  int                    `json:"count"`
}

type krakenResponse struct {
	Error  []string      `json:"error"`
	Result ledgersResult `json:"result"`
}

func (l *Ledgers) Execute(ctx context.Context, op provider.Operation, args provider.Args) (any, error) {
	if op != provider.OpGetAddressBalances {
		return nil, provider.NewProviderError("UNSUPPORTED_OPERATION", fmt.Sprintf("operation %s not supported", op), l.Name(), false, nil)
	}

	creds, ok := args.Extra["credentials"].(Credentials)
	if !ok {
		return nil, provider.NewProviderError("MISSING_CREDENTIALS", "kraken ledgers requires API credentials", l.Name(), false, nil)
	}

	offset := "0"
	if args.Cursor != "" {
		offset = args.Cursor
	}

	form := url.Values{}
	form.Set("nonce", strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10))
	form.Set("ofs", offset)

	body, err := l.signedPost(ctx, "/0/private/Ledgers", form, creds)
	if err != nil {
		return nil, err
	}

	var parsed krakenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("kraken: parse response: %w", err)
	}
	if len(parsed.Error) > 0 {
		return nil, provider.NewProviderError("API_ERROR", strings.Join(parsed.Error, "; "), l.Name(), isRetryableKrakenError(parsed.Error), nil)
	}
	return parsed.Result, nil
}

func isRetryableKrakenError(errs []string) bool {
	for _, e := range errs {
		if strings.Contains(e, "Rate limit") || strings.Contains(e, "Service:Busy") || strings.Contains(e, "Service:Unavailable") {
			return true
		}
	}
	return false
}

// signedPost implements Kraken's REST request signing: HMAC-SHA512 over
// path + SHA256(nonce + postdata), keyed by the base64-decoded API secret.
func (l *Ledgers) signedPost(ctx context.Context, path string, form url.Values, creds Credentials) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(creds.APISecret)
	if err != nil {
		return nil, provider.NewProviderError("BAD_CREDENTIALS", "kraken API secret is not valid base64", l.Name(), false, err)
	}

	payload := form.Encode()
	shaSum := sha256.Sum256([]byte(form.Get("nonce") + payload))
	mac := hmac.New(sha512.New, secret)
	mac.Write(append([]byte(path), shaSum[:]...))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, krakenBaseURL+path, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("kraken: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", creds.APIKey)
	req.Header.Set("API-Sign", signature)

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, provider.NewProviderError("HTTP_ERROR", err.Error(), l.Name(), true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kraken: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewProviderError("HTTP_ERROR", fmt.Sprintf("HTTP %d", resp.StatusCode), l.Name(), resp.StatusCode >= 500, nil)
	}
	return body, nil
}
