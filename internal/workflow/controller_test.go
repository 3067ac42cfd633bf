package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
)

// fakeStore records calls and returns scripted errors.
type fakeStore struct {
	mu          sync.Mutex
	approveErr  error
	rejectErr   error
	approved    [][]string
	rejected    [][]string
	reasons     []string
	staged      []model.StagingRecord
	listErr     error
	approveWait chan struct{} // when set, ApproveBatch blocks until closed
}

func (s *fakeStore) ApproveBatch(ctx context.Context, ids []string) error {
	s.mu.Lock()
	wait := s.approveWait
	s.approved = append(s.approved, ids)
	s.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return s.approveErr
}

func (s *fakeStore) RejectBatch(ctx context.Context, ids []string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, ids)
	s.reasons = append(s.reasons, reason)
	return s.rejectErr
}

func (s *fakeStore) ListStaged(ctx context.Context) ([]model.StagingRecord, error) {
	return s.staged, s.listErr
}

func (s *fakeStore) approveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.approved)
}

func stagedRecord(id, text string) model.StagingRecord {
	return model.StagingRecord{
		ID:         id,
		CampaignID: "camp-1",
		ResourceID: "res-1",
		ShardType:  "npc",
		Content:    text,
		Metadata:   `{"entityType":"npc","confidence":0.8,"sourceRef":{"fileKey":"t/doc.p001.pdf"}}`,
		Status:     model.StagingStatusStaged,
	}
}

func groupsOf(records ...model.StagingRecord) []model.StagingGroup {
	return model.GroupStagingRecords(records)
}

func readyController(t *testing.T, store *fakeStore, records ...model.StagingRecord) *Controller {
	t.Helper()
	store.staged = records
	c := NewController(store)
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func TestSelection_ToggleAndSelectAll(t *testing.T) {
	a := stagedRecord("a", `{"type":"npc","name":"x","description":"d"}`)
	b := stagedRecord("b", "free text")
	c := readyController(t, &fakeStore{}, a, b)

	c.SelectAll(groupsOf(a, b))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Selected())

	c.Toggle("a")
	assert.Equal(t, []string{"b"}, c.Selected())

	c.Toggle("a")
	assert.ElementsMatch(t, []string{"a", "b"}, c.Selected())

	c.SelectNone()
	assert.Empty(t, c.Selected())
}

func TestApproveSelected_SuccessClearsSelection(t *testing.T) {
	a := stagedRecord("a", "text a")
	b := stagedRecord("b", "text b")
	store := &fakeStore{}
	c := readyController(t, store, a, b)
	c.SelectAll(groupsOf(a, b))

	require.NoError(t, c.ApproveSelected(context.Background()))

	require.Len(t, store.approved, 1)
	assert.Equal(t, []string{"a", "b"}, store.approved[0])
	assert.Empty(t, c.Selected())
	assert.True(t, c.IsProcessed("a"))
	assert.True(t, c.IsProcessed("b"))
	assert.Equal(t, ActionNone, c.InFlightAction())
}

func TestApproveSelected_BlockedStubMakesNoStoreCall(t *testing.T) {
	complete := stagedRecord("ok", `{"type":"npc","name":"Elara","description":"d"}`)
	stub := stagedRecord("stub", `{"type":"npc","stub":true,"name":"Bram"}`)
	store := &fakeStore{}
	c := readyController(t, store, complete, stub)
	c.SelectAll(groupsOf(complete, stub))

	err := c.ApproveSelected(context.Background())

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []string{"description"}, blocked.Missing["stub"])
	assert.NotContains(t, blocked.Missing, "ok")
	assert.Zero(t, store.approveCalls(), "refusal must happen before any store call")
	assert.False(t, c.IsProcessed("stub"))
	assert.ElementsMatch(t, []string{"ok", "stub"}, c.Selected(), "selection untouched")
}

func TestApproveSelected_FailureRollsBackProcessedMarks(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{approveErr: repository.ErrStagingWrite}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	err := c.ApproveSelected(context.Background())

	require.ErrorIs(t, err, repository.ErrStagingWrite)
	assert.False(t, c.IsProcessed("a"), "optimistic mark rolled back")
	assert.Equal(t, []string{"a"}, c.Selected(), "selection restored")
	assert.Equal(t, ActionNone, c.InFlightAction())
}

func TestApproveSelected_IdempotentConflictKeepsMarks(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{approveErr: repository.ErrAlreadyResolved}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	err := c.ApproveSelected(context.Background())

	require.NoError(t, err, "already-resolved reads as success")
	assert.True(t, c.IsProcessed("a"), "optimistic mark kept")
	assert.Empty(t, c.Selected())
}

func TestApproveSelected_UnclassifiedSelectionRefused(t *testing.T) {
	store := &fakeStore{}
	c := NewController(store) // never refreshed, classification cache empty
	c.Toggle("stub")

	err := c.ApproveSelected(context.Background())

	require.ErrorIs(t, err, ErrStaleSelection)
	assert.Zero(t, store.approveCalls(), "refusal must happen before any store call")
	assert.Equal(t, []string{"stub"}, c.Selected(), "selection untouched")
	assert.False(t, c.IsProcessed("stub"))
}

func TestApproveOne_UnclassifiedShardRefused(t *testing.T) {
	store := &fakeStore{}
	c := NewController(store)

	err := c.ApproveOne(context.Background(), "ghost")

	require.ErrorIs(t, err, ErrStaleSelection)
	assert.Zero(t, store.approveCalls())
	assert.False(t, c.IsProcessed("ghost"))
}

func TestApproveSelected_EmptySelection(t *testing.T) {
	c := readyController(t, &fakeStore{})

	assert.ErrorIs(t, c.ApproveSelected(context.Background()), ErrNothingSelected)
}

func TestApproveSelected_SecondBulkActionRefusedWhileInFlight(t *testing.T) {
	a := stagedRecord("a", "text")
	wait := make(chan struct{})
	store := &fakeStore{approveWait: wait}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	done := make(chan error, 1)
	go func() { done <- c.ApproveSelected(context.Background()) }()

	// Wait for the first action to claim the slot and issue its call.
	require.Eventually(t, func() bool {
		return c.InFlightAction() == ActionApproving
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.RejectSelected(context.Background(), "dup"), ErrActionInFlight)

	close(wait)
	require.NoError(t, <-done)
}

func TestRejectSelected_RequiresReason(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	assert.ErrorIs(t, c.RejectSelected(context.Background(), ""), ErrEmptyReason)
	assert.Empty(t, store.rejected)
}

func TestRejectSelected_PassesReasonThrough(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	require.NoError(t, c.RejectSelected(context.Background(), "duplicate entry"))

	require.Len(t, store.rejected, 1)
	assert.Equal(t, []string{"a"}, store.rejected[0])
	assert.Equal(t, []string{"duplicate entry"}, store.reasons)
}

func TestApproveOne_RunsWhileOthersStayInteractive(t *testing.T) {
	a := stagedRecord("a", "text a")
	b := stagedRecord("b", "text b")
	store := &fakeStore{}
	c := readyController(t, store, a, b)

	require.NoError(t, c.ApproveOne(context.Background(), "a"))

	assert.True(t, c.IsProcessed("a"))
	assert.False(t, c.IsProcessed("b"))
	assert.Equal(t, ActionNone, c.InFlightAction(), "single-row action does not claim the bulk slot")
}

func TestApproveOne_BlockedStub(t *testing.T) {
	stub := stagedRecord("stub", `{"type":"npc","stub":true,"name":"Bram"}`)
	store := &fakeStore{}
	c := readyController(t, store, stub)

	err := c.ApproveOne(context.Background(), "stub")

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Zero(t, store.approveCalls())
}

func TestRejectOne_FailureRollsBack(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{rejectErr: errors.New("boom")}
	c := readyController(t, store, a)

	err := c.RejectOne(context.Background(), "a", "bad data")

	require.Error(t, err)
	assert.False(t, c.IsProcessed("a"))
}

func TestRefresh_DropsResolvedIDs(t *testing.T) {
	a := stagedRecord("a", "text a")
	b := stagedRecord("b", "text b")
	store := &fakeStore{}
	c := readyController(t, store, a, b)
	c.SelectAll(groupsOf(a, b))
	require.NoError(t, c.ApproveOne(context.Background(), "a"))
	assert.True(t, c.IsProcessed("a"))

	// Server no longer lists a as staged: the local mark is reconciled away.
	store.staged = []model.StagingRecord{b}
	require.NoError(t, c.Refresh(context.Background()))

	assert.False(t, c.IsProcessed("a"))
	assert.Equal(t, []string{"b"}, c.Selected())
}

func TestBeginAction_ExclusiveWithBulkActions(t *testing.T) {
	a := stagedRecord("a", "text")
	c := readyController(t, &fakeStore{}, a)
	c.SelectAll(groupsOf(a))

	release, err := c.BeginAction(ActionEditing)
	require.NoError(t, err)
	assert.Equal(t, ActionEditing, c.InFlightAction())

	assert.ErrorIs(t, c.ApproveSelected(context.Background()), ErrActionInFlight)
	_, err = c.BeginAction(ActionDeleting)
	assert.ErrorIs(t, err, ErrActionInFlight)

	release()
	assert.Equal(t, ActionNone, c.InFlightAction())
	assert.NoError(t, c.ApproveSelected(context.Background()))
}

func TestWatchRefresh_TriggersAfterSignal(t *testing.T) {
	a := stagedRecord("a", "text")
	store := &fakeStore{}
	c := readyController(t, store, a)
	c.SelectAll(groupsOf(a))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		c.WatchRefresh(ctx, signals, time.Millisecond)
		close(done)
	}()

	store.staged = nil // server resolved everything
	signals <- struct{}{}

	require.Eventually(t, func() bool {
		return len(c.Selected()) == 0
	}, time.Second, 5*time.Millisecond)

	close(signals)
	<-done
}
