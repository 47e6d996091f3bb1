// Package repository declares the persistence contracts the core consumes
// (spec.md §6, "Repository contracts"). The relational layer itself is an
// external collaborator; this package only defines the narrow interfaces
// the Runner and the matching engine call through, plus (in the memstore
// subpackage) an in-memory reference implementation used by tests.
package repository

import (
	"context"

	"github.com/yourusername/ledgerflow/internal/domain"
)

// SaveBatchResult reports how many of the records handed to SaveBatch were
// newly inserted versus already present (content-hash idempotence).
type SaveBatchResult struct {
	Inserted int
	Skipped  int
}

// AccountRepository persists Account.LastCursor updates. It is the only
// writer of cursor state; the Runner never touches any other field.
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*domain.Account, error)
	UpdateCursor(ctx context.Context, accountID, streamType string, cursor domain.CursorState) error
}

// ImportSessionRepository manages the single-flight session lifecycle
// (spec.md §3 ImportSession invariants).
type ImportSessionRepository interface {
	Create(ctx context.Context, session *domain.ImportSession) error
	Update(ctx context.Context, session *domain.ImportSession) error
	Finalize(ctx context.Context, sessionID string, status domain.SessionStatus, errMessage string, metadata map[string]any) (*domain.ImportSession, error)
	FindLatestIncomplete(ctx context.Context, accountID string) (*domain.ImportSession, error)
	FindByID(ctx context.Context, sessionID string) (*domain.ImportSession, error)
}

// RawDataRepository is the content-addressed raw-record sink.
type RawDataRepository interface {
	// SaveBatch is idempotent on (accountID, sourceName, ContentHash).
	SaveBatch(ctx context.Context, accountID, sourceName, sessionID string, records []domain.RawRecord) (SaveBatchResult, error)
	CountByStreamType(ctx context.Context, accountID string) (map[string]int, error)
	// ListProcessable returns records in RecordPending status for an
	// account, for the matching engine's processor stage.
	ListProcessable(ctx context.Context, accountID string) ([]domain.RawRecord, error)
	MarkProcessed(ctx context.Context, contentHashes []string) error
}

// TransactionLinkRepository persists matching-engine output.
type TransactionLinkRepository interface {
	Save(ctx context.Context, link *domain.TransactionLink) (string, error)
	FindByTargetTransactionID(ctx context.Context, targetTxID string) (*domain.TransactionLink, error)
}
