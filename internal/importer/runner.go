// Package importer implements the streaming import runner of spec.md §4.3:
// pre-flight adapter/address resolution, the per-batch save-then-commit
// loop, partial-failure handling, and cancellation semantics.
//
// Grounded on the teacher's internal/cli command loop shape (resolve →
// validate → execute → report) but built around a batch channel instead of
// a one-shot RPC call, since the teacher has no streaming/resumable
// ingestion analogue.
package importer

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/ledgerflow/internal/config"
	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
	"github.com/yourusername/ledgerflow/internal/repository"
	"github.com/yourusername/ledgerflow/pkg/eventbus"
)

// Runner drives one import task per call to ImportFromSource.
type Runner struct {
	registry        *registry.Registry
	providerManager *provider.Manager
	accounts        AccountRepository
	sessions        SessionRepository
	sink            RawDataRepository
	bus             *eventbus.Bus
	cfg             config.RunnerConfig
}

// AccountRepository, SessionRepository, and RawDataRepository are the
// subsets of internal/repository's contracts the Runner calls through —
// declared locally so the Runner depends only on the methods it uses (it
// imports internal/repository for SaveBatchResult alone; memstore and
// cmd/ledgerflow wire the concrete implementations).
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*domain.Account, error)
	UpdateCursor(ctx context.Context, accountID, streamType string, cursor domain.CursorState) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.ImportSession) error
	Update(ctx context.Context, session *domain.ImportSession) error
	Finalize(ctx context.Context, sessionID string, status domain.SessionStatus, errMessage string, metadata map[string]any) (*domain.ImportSession, error)
	FindLatestIncomplete(ctx context.Context, accountID string) (*domain.ImportSession, error)
	FindByID(ctx context.Context, sessionID string) (*domain.ImportSession, error)
}

type RawDataRepository interface {
	SaveBatch(ctx context.Context, accountID, sourceName, sessionID string, records []domain.RawRecord) (repository.SaveBatchResult, error)
}

// New builds a Runner.
func New(reg *registry.Registry, mgr *provider.Manager, accounts AccountRepository, sessions SessionRepository, sink RawDataRepository, bus *eventbus.Bus, cfg config.RunnerConfig) *Runner {
	return &Runner{registry: reg, providerManager: mgr, accounts: accounts, sessions: sessions, sink: sink, bus: bus, cfg: cfg}
}

// ImportFromSource implements spec.md §4.3 in full: pre-flight, batch loop,
// finalization, partial-failure handling, and cancellation.
func (r *Runner) ImportFromSource(ctx context.Context, account *domain.Account) (*domain.ImportSession, error) {
	resolved, err := r.registry.Resolve(account.SourceName)
	if err != nil {
		return nil, err
	}

	if account.Kind == domain.AccountKindBlockchain {
		if resolved.AddressRule == nil {
			return nil, domain.NewError(domain.KindInvalidAccountInput, "blockchain adapter has no address rule").
				WithContext(map[string]any{"sourceName": account.SourceName})
		}
		canonical, err := resolved.AddressRule.Normalize(account.Identifier)
		if err != nil {
			return nil, err
		}
		account.Identifier = canonical
	}

	session, err := r.resolveSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	imp := resolved.CreateImporter(r.providerManager, account.PreferredProvider)
	batches, err := imp.ImportStreaming(ctx, domain.ImportParams{
		Address:      account.Identifier,
		Cursor:       account.LastCursor,
		ProviderName: account.PreferredProvider,
	})
	if err != nil {
		return r.failSession(ctx, session, domain.KindProviderTransient, err.Error(), nil)
	}

	return r.runBatchLoop(ctx, account, session, batches)
}

func (r *Runner) resolveSession(ctx context.Context, accountID string) (*domain.ImportSession, error) {
	existing, err := r.sessions.FindLatestIncomplete(ctx, accountID)
	if err != nil {
		return nil, domain.Wrap(domain.KindSinkWriteFailed, "failed to query latest incomplete session", err)
	}
	if existing != nil {
		existing.Status = domain.SessionStarted
		if err := r.sessions.Update(ctx, existing); err != nil {
			return nil, domain.Wrap(domain.KindSinkWriteFailed, "failed to resume session", err)
		}
		return existing, nil
	}

	session := &domain.ImportSession{
		AccountID: accountID,
		Status:    domain.SessionStarted,
		StartedAt: time.Now(),
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, domain.Wrap(domain.KindSinkWriteFailed, "failed to create session", err)
	}
	r.publish(ctx, eventbus.TopicSessionStarted, session, nil, 0)
	return session, nil
}

func (r *Runner) runBatchLoop(ctx context.Context, account *domain.Account, session *domain.ImportSession, batches <-chan domain.BatchResult) (*domain.ImportSession, error) {
	for {
		select {
		case <-ctx.Done():
			reason := "cancelled"
			kind := domain.KindCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = "timeout"
				kind = domain.KindTimeout
			}
			return r.failSession(ctx, session, kind, reason, map[string]any{"reason": reason})
		case result, ok := <-batches:
			if !ok {
				return r.completeSession(ctx, session)
			}

			if result.Err != nil {
				var partial *domain.PartialImportError
				if errors.As(result.Err, &partial) {
					if err := r.handlePartialImport(ctx, account, session, partial); err != nil {
						return nil, err
					}
					return r.failSession(ctx, session, domain.KindPartialImport, result.Err.Error(), map[string]any{
						"failingItem": string(partial.FailingItem),
						"reason":      "partial-import",
					})
				}
				return r.failSession(ctx, session, domain.KindProviderTransient, result.Err.Error(), nil)
			}

			batch := result.Batch
			if len(batch.Warnings) > 0 {
				return r.failSession(ctx, session, domain.KindWarningsEmitted, warningsMessage(len(batch.Warnings)), map[string]any{
					"warnings": batch.Warnings,
				})
			}

			if err := r.processBatch(ctx, account, session, batch); err != nil {
				return nil, err
			}

			if batch.IsComplete {
				continue
			}
		}
	}
}

func warningsMessage(n int) string {
	if n == 1 {
		return "import produced 1 warning; aborting (ambiguous data must not be silently processed)"
	}
	return "import produced warnings; aborting (ambiguous data must not be silently processed)"
}

// processBatch implements steps 3-6 of spec.md §4.3's batch loop: sink
// write, cursor commit (strictly after the sink acknowledges), counter
// accumulation, and batch.saved emission.
func (r *Runner) processBatch(ctx context.Context, account *domain.Account, session *domain.ImportSession, batch *domain.Batch) error {
	saveCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.BatchSaveTimeout > 0 {
		saveCtx, cancel = context.WithTimeout(ctx, r.cfg.BatchSaveTimeout)
		defer cancel()
	}

	result, err := r.sink.SaveBatch(saveCtx, account.ID, account.SourceName, session.ID, batch.RawTransactions)
	if err != nil {
		kind := domain.KindSinkWriteFailed
		if errors.Is(saveCtx.Err(), context.DeadlineExceeded) {
			kind = domain.KindTimeout
		}
		_, failErr := r.failSession(ctx, session, kind, err.Error(), nil)
		return failErr
	}

	if err := r.accounts.UpdateCursor(ctx, account.ID, batch.StreamType, batch.Cursor); err != nil {
		_, failErr := r.failSession(ctx, session, domain.KindCursorCommitFailed, err.Error(), nil)
		return failErr
	}
	for streamType, cursor := range batch.CursorUpdates {
		if err := r.accounts.UpdateCursor(ctx, account.ID, streamType, cursor); err != nil {
			_, failErr := r.failSession(ctx, session, domain.KindCursorCommitFailed, err.Error(), nil)
			return failErr
		}
	}

	session.TransactionsImported += int64(result.Inserted)
	session.TransactionsSkipped += int64(result.Skipped)
	if err := r.sessions.Update(ctx, session); err != nil {
		return domain.Wrap(domain.KindSinkWriteFailed, "session update failed", err)
	}

	r.publish(ctx, eventbus.TopicBatchSaved, session, map[string]int64{
		"inserted": int64(result.Inserted),
		"skipped":  int64(result.Skipped),
		"total":    batch.Cursor.TotalFetched,
	}, 0)
	return nil
}

// handlePartialImport implements spec.md §4.3's "Partial-failure path":
// save the validated prefix and apply the last-good cursor updates before
// the session is finalized failed by the caller.
func (r *Runner) handlePartialImport(ctx context.Context, account *domain.Account, session *domain.ImportSession, partial *domain.PartialImportError) error {
	if len(partial.LastGood) > 0 {
		result, err := r.sink.SaveBatch(ctx, account.ID, account.SourceName, session.ID, partial.LastGood)
		if err != nil {
			return domain.Wrap(domain.KindSinkWriteFailed, "failed to save partial-import prefix", err)
		}
		session.TransactionsImported += int64(result.Inserted)
		session.TransactionsSkipped += int64(result.Skipped)
	}
	for streamType, cursor := range partial.CursorUpdates {
		if err := r.accounts.UpdateCursor(ctx, account.ID, streamType, cursor); err != nil {
			return domain.Wrap(domain.KindCursorCommitFailed, "failed to apply last-good cursor", err)
		}
	}
	return nil
}

func (r *Runner) completeSession(ctx context.Context, session *domain.ImportSession) (*domain.ImportSession, error) {
	final, err := r.sessions.Finalize(ctx, session.ID, domain.SessionCompleted, "", nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindSinkWriteFailed, "failed to finalize completed session", err)
	}
	r.publish(ctx, eventbus.TopicSessionCompleted, final, nil, 0)
	return final, nil
}

func (r *Runner) failSession(ctx context.Context, session *domain.ImportSession, kind domain.Kind, message string, metadata map[string]any) (*domain.ImportSession, error) {
	final, finErr := r.sessions.Finalize(ctx, session.ID, domain.SessionFailed, message, metadata)
	if finErr != nil {
		return nil, domain.Wrap(domain.KindSinkWriteFailed, "failed to finalize failed session", finErr)
	}
	r.publish(ctx, eventbus.TopicSessionFailed, final, nil, 0)
	return nil, domain.NewError(kind, message).WithContext(map[string]any{"sessionId": session.ID})
}

func (r *Runner) publish(ctx context.Context, topic eventbus.Topic, session *domain.ImportSession, counts map[string]int64, dur time.Duration) {
	if r.bus == nil || session == nil {
		return
	}
	r.bus.Publish(ctx, eventbus.Event{
		Topic:         topic,
		CorrelationID: session.ID,
		AccountID:     session.AccountID,
		Counts:        counts,
		Duration:      dur,
	})
}
