// Package memstore is an in-memory reference implementation of every
// contract in internal/repository. It is not a production persistence
// layer (the relational store is an external collaborator per spec.md
// §1) — it exists so the Runner and matching engine can be exercised end
// to end in tests, and to make the atomicity contract of spec.md §4.3 step
// 4 (sink-write-then-cursor-commit) concrete. Adapted from the teacher's
// chainadapter/storage.MemoryTxStore: a sync.RWMutex-guarded map with
// copy-on-read/copy-on-write semantics so callers can never mutate stored
// state through a returned pointer.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/repository"
)

// Store bundles all four repository contracts behind one in-memory
// instance, the way a single relational database would in production.
type Store struct {
	mu sync.RWMutex

	accounts map[string]*domain.Account
	sessions map[string]*domain.ImportSession
	// rawByAccount indexes records by accountID for CountByStreamType /
	// ListProcessable; rawHashes enforces (accountID, sourceName,
	// contentHash) uniqueness for idempotent SaveBatch.
	rawByAccount map[string][]domain.RawRecord
	rawHashes    map[string]map[string]struct{} // accountID -> sourceName:contentHash -> {}
	links        map[string]*domain.TransactionLink
	linksByTarget map[string]string // targetTransactionID -> link id
	nextID       int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		sessions:      make(map[string]*domain.ImportSession),
		rawByAccount:  make(map[string][]domain.RawRecord),
		rawHashes:     make(map[string]map[string]struct{}),
		links:         make(map[string]*domain.TransactionLink),
		linksByTarget: make(map[string]string),
	}
}

func (s *Store) genID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// SeedAccount registers an Account for tests and bootstrap code; production
// code would load this from the relational store instead.
func (s *Store) SeedAccount(a *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	cp.LastCursor = cloneCursorMap(a.LastCursor)
	s.accounts[a.ID] = &cp
}

var _ repository.AccountRepository = (*Store)(nil)
var _ repository.ImportSessionRepository = (*Store)(nil)
var _ repository.RawDataRepository = (*Store)(nil)
var _ repository.TransactionLinkRepository = (*Store)(nil)

// --- AccountRepository ---

func (s *Store) GetByID(_ context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("memstore: account %s not found", accountID)
	}
	cp := *a
	cp.LastCursor = cloneCursorMap(a.LastCursor)
	return &cp, nil
}

func (s *Store) UpdateCursor(_ context.Context, accountID, streamType string, cursor domain.CursorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("memstore: account %s not found", accountID)
	}
	if a.LastCursor == nil {
		a.LastCursor = make(map[string]domain.CursorState)
	}
	a.LastCursor[streamType] = cursor
	return nil
}

func cloneCursorMap(m map[string]domain.CursorState) map[string]domain.CursorState {
	out := make(map[string]domain.CursorState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- ImportSessionRepository ---

func (s *Store) Create(_ context.Context, session *domain.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = s.genID("sess")
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *Store) Update(_ context.Context, session *domain.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("memstore: session %s not found", session.ID)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *Store) Finalize(_ context.Context, sessionID string, status domain.SessionStatus, errMessage string, metadata map[string]any) (*domain.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("memstore: session %s not found", sessionID)
	}
	if sess.Status == domain.SessionCompleted {
		return nil, fmt.Errorf("memstore: session %s already completed, no revival", sessionID)
	}
	now := time.Now()
	sess.Status = status
	sess.ErrorMessage = errMessage
	sess.CompletedAt = &now
	if metadata != nil {
		if sess.Metadata == nil {
			sess.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			sess.Metadata[k] = v
		}
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) FindLatestIncomplete(_ context.Context, accountID string) (*domain.ImportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ImportSession
	for _, sess := range s.sessions {
		if sess.AccountID != accountID || sess.Status == domain.SessionCompleted {
			continue
		}
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) FindByID(_ context.Context, sessionID string) (*domain.ImportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("memstore: session %s not found", sessionID)
	}
	cp := *sess
	return &cp, nil
}

// --- RawDataRepository ---

func (s *Store) SaveBatch(_ context.Context, accountID, sourceName, sessionID string, records []domain.RawRecord) (repository.SaveBatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashSet, ok := s.rawHashes[accountID]
	if !ok {
		hashSet = make(map[string]struct{})
		s.rawHashes[accountID] = hashSet
	}

	result := repository.SaveBatchResult{}
	for _, rec := range records {
		key := sourceName + ":" + rec.ContentHash
		if _, exists := hashSet[key]; exists {
			result.Skipped++
			continue
		}
		hashSet[key] = struct{}{}
		rec.SessionID = sessionID
		if rec.Status == "" {
			rec.Status = domain.RecordPending
		}
		s.rawByAccount[accountID] = append(s.rawByAccount[accountID], rec)
		result.Inserted++
	}
	return result, nil
}

func (s *Store) CountByStreamType(_ context.Context, accountID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range s.rawByAccount[accountID] {
		counts[rec.StreamType]++
	}
	return counts, nil
}

func (s *Store) ListProcessable(_ context.Context, accountID string) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RawRecord, 0)
	for _, rec := range s.rawByAccount[accountID] {
		if rec.Status == domain.RecordPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, contentHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(contentHashes))
	for _, h := range contentHashes {
		want[h] = struct{}{}
	}
	for accountID, records := range s.rawByAccount {
		for i := range records {
			if _, ok := want[records[i].ContentHash]; ok {
				records[i].Status = domain.RecordProcessed
			}
		}
		s.rawByAccount[accountID] = records
	}
	return nil
}

// --- TransactionLinkRepository ---

func (s *Store) Save(_ context.Context, link *domain.TransactionLink) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = s.genID("link")
	}
	cp := *link
	s.links[link.ID] = &cp
	s.linksByTarget[link.TargetTransactionID] = link.ID
	return link.ID, nil
}

func (s *Store) FindByTargetTransactionID(_ context.Context, targetTxID string) (*domain.TransactionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.linksByTarget[targetTxID]
	if !ok {
		return nil, nil
	}
	cp := *s.links[id]
	return &cp, nil
}

// AllLinks returns every persisted link, sorted by id, for assertions in
// tests.
func (s *Store) AllLinks() []*domain.TransactionLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.TransactionLink, 0, len(s.links))
	for _, l := range s.links {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
