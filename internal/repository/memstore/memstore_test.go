package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ledgerflow/internal/domain"
)

func TestGetByIDReturnsACopyNotTheStoredPointer(t *testing.T) {
	s := New()
	s.SeedAccount(&domain.Account{ID: "acct1", LastCursor: map[string]domain.CursorState{}})

	got, err := s.GetByID(context.Background(), "acct1")
	require.NoError(t, err)
	got.Identifier = "mutated"
	got.LastCursor["normal"] = domain.CursorState{}

	again, err := s.GetByID(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Empty(t, again.Identifier, "mutating a returned Account must not affect the stored copy")
	assert.Empty(t, again.LastCursor, "mutating the returned cursor map must not affect the stored copy")
}

func TestGetByIDUnknownAccount(t *testing.T) {
	s := New()
	_, err := s.GetByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestUpdateCursorPersistsAndInitializesNilMap(t *testing.T) {
	s := New()
	s.SeedAccount(&domain.Account{ID: "acct1"})

	err := s.UpdateCursor(context.Background(), "acct1", "normal", domain.CursorState{})
	require.NoError(t, err)

	got, err := s.GetByID(context.Background(), "acct1")
	require.NoError(t, err)
	_, ok := got.LastCursor["normal"]
	assert.True(t, ok)
}

func TestSessionCreateAssignsIDWhenMissing(t *testing.T) {
	s := New()
	sess := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionStarted}
	err := s.Create(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := s.FindByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStarted, got.Status)
}

func TestSessionUpdateFailsForUnknownSession(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), &domain.ImportSession{ID: "nope"})
	assert.Error(t, err)
}

func TestSessionFinalizeSetsStatusAndMergesMetadata(t *testing.T) {
	s := New()
	sess := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionStarted, Metadata: map[string]any{"a": 1}}
	require.NoError(t, s.Create(context.Background(), sess))

	got, err := s.Finalize(context.Background(), sess.ID, domain.SessionCompleted, "", map[string]any{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, got.Metadata["a"])
	assert.Equal(t, 2, got.Metadata["b"])
}

func TestSessionFinalizeRefusesToReviveACompletedSession(t *testing.T) {
	s := New()
	sess := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionStarted}
	require.NoError(t, s.Create(context.Background(), sess))
	_, err := s.Finalize(context.Background(), sess.ID, domain.SessionCompleted, "", nil)
	require.NoError(t, err)

	_, err = s.Finalize(context.Background(), sess.ID, domain.SessionFailed, "boom", nil)
	assert.Error(t, err, "a completed session must never be finalized again")
}

func TestFindLatestIncompleteIgnoresCompletedAndOtherAccounts(t *testing.T) {
	s := New()
	older := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionStarted, StartedAt: time.Now().Add(-time.Hour)}
	newer := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionStarted, StartedAt: time.Now()}
	completed := &domain.ImportSession{AccountID: "acct1", Status: domain.SessionCompleted, StartedAt: time.Now().Add(time.Hour)}
	other := &domain.ImportSession{AccountID: "acct2", Status: domain.SessionStarted, StartedAt: time.Now().Add(2 * time.Hour)}
	for _, sess := range []*domain.ImportSession{older, newer, completed, other} {
		require.NoError(t, s.Create(context.Background(), sess))
	}

	got, err := s.FindLatestIncomplete(context.Background(), "acct1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
}

func TestFindLatestIncompleteReturnsNilWhenNoneExist(t *testing.T) {
	s := New()
	got, err := s.FindLatestIncomplete(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveBatchIsIdempotentOnContentHash(t *testing.T) {
	s := New()
	records := []domain.RawRecord{
		{ContentHash: "h1", StreamType: "normal"},
		{ContentHash: "h2", StreamType: "normal"},
	}
	result, err := s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", records)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Skipped)

	result, err = s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", records)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Skipped)
}

func TestSaveBatchScopesUniquenessBySourceName(t *testing.T) {
	s := New()
	rec := []domain.RawRecord{{ContentHash: "h1", StreamType: "normal"}}
	_, err := s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", rec)
	require.NoError(t, err)

	result, err := s.SaveBatch(context.Background(), "acct1", "kraken", "sess1", rec)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted, "the same content hash under a different source name must not be treated as a duplicate")
}

func TestSaveBatchDefaultsStatusToPending(t *testing.T) {
	s := New()
	rec := []domain.RawRecord{{ContentHash: "h1", StreamType: "normal"}}
	_, err := s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", rec)
	require.NoError(t, err)

	processable, err := s.ListProcessable(context.Background(), "acct1")
	require.NoError(t, err)
	require.Len(t, processable, 1)
	assert.Equal(t, domain.RecordPending, processable[0].Status)
}

func TestCountByStreamType(t *testing.T) {
	s := New()
	records := []domain.RawRecord{
		{ContentHash: "h1", StreamType: "normal"},
		{ContentHash: "h2", StreamType: "normal"},
		{ContentHash: "h3", StreamType: "token"},
	}
	_, err := s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", records)
	require.NoError(t, err)

	counts, err := s.CountByStreamType(context.Background(), "acct1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts["normal"])
	assert.Equal(t, 1, counts["token"])
}

func TestMarkProcessedExcludesRecordsFromListProcessable(t *testing.T) {
	s := New()
	records := []domain.RawRecord{
		{ContentHash: "h1", StreamType: "normal"},
		{ContentHash: "h2", StreamType: "normal"},
	}
	_, err := s.SaveBatch(context.Background(), "acct1", "bitcoin", "sess1", records)
	require.NoError(t, err)

	require.NoError(t, s.MarkProcessed(context.Background(), []string{"h1"}))

	processable, err := s.ListProcessable(context.Background(), "acct1")
	require.NoError(t, err)
	require.Len(t, processable, 1)
	assert.Equal(t, "h2", processable[0].ContentHash)
}

func TestLinkSaveAssignsIDAndIndexesByTarget(t *testing.T) {
	s := New()
	link := &domain.TransactionLink{TargetTransactionID: "tgt1"}
	id, err := s.Save(context.Background(), link)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.FindByTargetTransactionID(context.Background(), "tgt1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
}

func TestFindByTargetTransactionIDReturnsNilWhenAbsent(t *testing.T) {
	s := New()
	got, err := s.FindByTargetTransactionID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAllLinksIsSortedByID(t *testing.T) {
	s := New()
	_, err := s.Save(context.Background(), &domain.TransactionLink{ID: "link-2", TargetTransactionID: "t2"})
	require.NoError(t, err)
	_, err = s.Save(context.Background(), &domain.TransactionLink{ID: "link-1", TargetTransactionID: "t1"})
	require.NoError(t, err)

	all := s.AllLinks()
	require.Len(t, all, 2)
	assert.Equal(t, "link-1", all[0].ID)
	assert.Equal(t, "link-2", all[1].ID)
}
