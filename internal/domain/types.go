// Package domain holds the design-level nouns of the ingestion and
// matching pipeline (spec.md §3) plus the external contracts the core
// relies on (spec.md §6). It has no I/O of its own — every method here is
// a pure data shape or an interface a collaborator package implements.
package domain

import (
	"context"
	"time"

	"github.com/yourusername/ledgerflow/internal/money"
)

// AccountKind classifies the data source an Account pulls from.
type AccountKind string

const (
	AccountKindBlockchain  AccountKind = "blockchain"
	AccountKindExchangeAPI AccountKind = "exchange-api"
	AccountKindExchangeCSV AccountKind = "exchange-csv"
)

// CursorState is an opaque-to-the-runner, adapter-defined resumption token.
// The runner only ever round-trips this value; it never inspects Primary or
// LastTransactionID beyond passing them back to the same adapter.
type CursorState struct {
	// Primary is the adapter-defined position marker: a timestamp, a block
	// number, an offset, or an opaque id, serialized as a string so the
	// Runner can store it without caring about its shape.
	Primary string `json:"primary"`
	// LastTransactionID breaks ties at the boundary of Primary (e.g. two
	// records sharing one timestamp).
	LastTransactionID string `json:"lastTransactionId,omitempty"`
	// TotalFetched is a monotone counter of records seen on this stream,
	// used for observability (batch.saved events) and property P1.
	TotalFetched int64 `json:"totalFetched"`
}

// Account is a user-owned data source.
type Account struct {
	ID                string
	Kind              AccountKind
	SourceName        string // e.g. "bitcoin", "kraken"
	Identifier        string // wallet address / API key handle / CSV dir list (adapter-specific)
	PreferredProvider string
	LastCursor        map[string]CursorState // streamType -> CursorState
}

// SessionStatus is the lifecycle state of an ImportSession.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ImportSession is one run of the runner against one Account.
type ImportSession struct {
	ID                    string
	AccountID             string
	Status                SessionStatus
	TransactionsImported  int64
	TransactionsSkipped   int64
	StartedAt             time.Time
	CompletedAt           *time.Time
	ErrorMessage          string
	Metadata              map[string]any
}

// RecordStatus is the processing state of a RawRecord.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordProcessed RecordStatus = "processed"
	RecordFailed    RecordStatus = "failed"
)

// RawRecord is one external record as produced by a provider, prior to
// normalization into a Movement.
type RawRecord struct {
	SessionID   string
	ContentHash string // adapter-computed, unique within (accountID, sourceName)
	StreamType  string // "normal", "internal", "token", "ledger", "trade", "deposit", ...
	Payload     []byte
	Status      RecordStatus
}

// Direction is the sign of a Movement relative to the owning account.
type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionNeutral Direction = "neutral"
)

// Movement is the ledger-level projection of a raw record.
type Movement struct {
	TransactionID string // id of the owning UniversalTransaction
	SourceName    string
	SourceKind    AccountKind
	AssetID       string // namespaced: "blockchain:bitcoin:btc", "exchange:kraken:btc"
	AssetSymbol   string
	NetAmount     money.Decimal // amount with network fee already subtracted, when known
	GrossAmount   money.Decimal // amount before fee subtraction
	Direction     Direction
	Timestamp     time.Time
	FromAddress   string
	ToAddress     string
	TxHash        string
}

// Amount returns NetAmount if non-zero, else GrossAmount — the "netAmount
// vs grossAmount" fallback rule used throughout §4.4.6.
func (m Movement) Amount() money.Decimal {
	if !m.NetAmount.IsZero() {
		return m.NetAmount
	}
	return m.GrossAmount
}

// UniversalTransaction is the normalized, processor-produced record
// consumed by the matching engine: one or more Movements sharing an
// originating id.
type UniversalTransaction struct {
	ID        string
	Movements []Movement
}

// TransactionCandidate is a single directional movement prepared for
// matching: one per (direction, asset) pair exploded from a
// UniversalTransaction.
type TransactionCandidate struct {
	ID                        string // (originatingTransactionID, direction, asset)
	OriginatingTransactionID  string
	SourceType                AccountKind
	SourceName                string
	AssetID                   string
	AssetSymbol               string
	Amount                    money.Decimal
	Direction                 Direction
	Timestamp                 time.Time
	FromAddress               string
	ToAddress                 string
	TxHash                    string
}

// LinkType is the derived directionality of a PotentialMatch.
type LinkType string

const (
	LinkExchangeToBlockchain  LinkType = "exchange_to_blockchain"
	LinkBlockchainToExchange  LinkType = "blockchain_to_exchange"
	LinkBlockchainToBlockchain LinkType = "blockchain_to_blockchain"
	LinkExchangeToExchange    LinkType = "exchange_to_exchange"
)

// TriState models a tri-valued match criterion: true, false, or unknown.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

// PotentialMatch is an ordered (source, target) candidate pair produced by
// the matching engine before deduplication/confirmation.
type PotentialMatch struct {
	Source            TransactionCandidate
	Target            TransactionCandidate
	AssetMatch        bool
	AmountSimilarity  float64 // in [0,1]
	TimingValid       bool
	TimingGapHours     float64
	AddressMatch       TriState
	HashMatch          TriState
	ConfidenceScore    float64 // in [0,1]
	LinkType           LinkType
}

// LinkStatus is the review state of a TransactionLink.
type LinkStatus string

const (
	LinkSuggested LinkStatus = "suggested"
	LinkConfirmed LinkStatus = "confirmed"
)

// TransactionLink is the persisted result of a confirmed or suggested
// match.
type TransactionLink struct {
	ID                   string
	SourceTransactionID  string
	TargetTransactionID  string
	AssetSymbol          string
	SourceAmount         money.Decimal
	TargetAmount         money.Decimal
	Status               LinkStatus
	Reviewer             string // "auto" or a user id
	ReviewedAt           *time.Time
	Variance             money.Decimal
	VariancePct          string // ToFixed(2)
	ImpliedFee           money.Decimal
	TargetExcessAllowed  bool
	TargetExcessPct      string
}

// Batch is one yield from an adapter's streaming importer.
type Batch struct {
	RawTransactions []RawRecord
	StreamType      string
	Cursor          CursorState
	IsComplete      bool
	Warnings        []string
	CursorUpdates   map[string]CursorState
}

// ImportParams configures one call to an importer's streaming method.
type ImportParams struct {
	Address        string
	Credentials    map[string]string
	CSVDirectories []string
	Cursor         map[string]CursorState
	ProviderName   string
}

// PartialImportError is raised by exchange importers that validated some
// records before hitting a fatal one. The runner persists LastGood and
// CursorUpdates, then fails the session with FailingItem recorded in
// metadata (spec.md §4.3 "Partial-failure path").
type PartialImportError struct {
	LastGood      []RawRecord
	FailingItem   []byte
	CursorUpdates map[string]CursorState
	Cause         error
}

func (e *PartialImportError) Error() string {
	return "partial import: " + e.Cause.Error()
}

func (e *PartialImportError) Unwrap() error { return e.Cause }

// BatchResult is the channel element a streaming importer produces: either
// a Batch or an error (including *PartialImportError).
type BatchResult struct {
	Batch *Batch
	Err   error
}

// Importer is the adapter-provided streaming contract (spec.md §6).
type Importer interface {
	// ImportStreaming returns a channel of BatchResult. The channel is
	// closed when the importer has no more data to yield or ctx is
	// cancelled. Implementations MUST NOT yield after ctx is Done.
	ImportStreaming(ctx context.Context, params ImportParams) (<-chan BatchResult, error)
}

// Processor is the adapter-provided contract that turns raw records into
// universal transactions. Process MUST be pure and deterministic over
// (records, sessionMetadata): no I/O.
type Processor interface {
	Process(records []RawRecord, sessionMetadata map[string]any) ([]UniversalTransaction, error)
}

// ChainModel classifies how a blockchain represents balances.
type ChainModel string

const (
	ChainModelUTXO    ChainModel = "utxo"
	ChainModelAccount ChainModel = "account-based"
)
