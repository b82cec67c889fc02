package questions

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askrelay/daemon/internal/logging"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(nopWriteCloser{io.Discard})
}

func sampleQuestion(messageID int64) PendingQuestion {
	return PendingQuestion{
		SessionID:    "sess-1",
		TmuxLocation: "main:0.1",
		Cwd:          "/home/dev/project",
		MessageID:    messageID,
		SubQuestions: []SubQuestion{
			{
				Prompt: "Proceed with the refactor?",
				Options: []Option{
					{Label: "Yes", Description: "apply all changes"},
					{Label: "No"},
				},
			},
		},
	}
}

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	store := NewStore(testLogger())

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := store.Register(sampleQuestion(int64(i)))
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate question ID %s", id)
		seen[id] = true
	}
}

func TestGetByMessageID(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(42))

	got := store.GetByMessageID(42)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "main:0.1", got.TmuxLocation)

	assert.Nil(t, store.GetByMessageID(999))
}

func TestRegisterDisplacesDuplicateMessageID(t *testing.T) {
	store := NewStore(testLogger())
	first := store.Register(sampleQuestion(7))
	second := store.Register(sampleQuestion(7))

	got := store.GetByMessageID(7)
	require.NotNil(t, got)
	assert.Equal(t, second, got.ID)
	assert.Nil(t, store.Get(first), "displaced entry should be gone")
}

func TestCopiesDoNotAliasStoreState(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(1))

	got := store.Get(id)
	require.NotNil(t, got)
	got.Selections[0] = "tampered"
	got.Answered = true

	fresh := store.Get(id)
	assert.Empty(t, fresh.Selections)
	assert.False(t, fresh.Answered)
}

func TestLatestUnanswered(t *testing.T) {
	store := NewStore(testLogger())
	assert.Nil(t, store.LatestUnanswered())

	first := store.Register(sampleQuestion(1))
	second := store.Register(sampleQuestion(2))

	got := store.LatestUnanswered()
	require.NotNil(t, got)
	assert.Equal(t, second, got.ID, "later registration wins, even within the same instant")

	store.MarkAnswered(second)
	got = store.LatestUnanswered()
	require.NotNil(t, got)
	assert.Equal(t, first, got.ID)

	store.MarkAnswered(first)
	assert.Nil(t, store.LatestUnanswered())
}

func TestMarkAnsweredIdempotent(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(1))

	store.MarkAnswered(id)
	store.MarkAnswered(id)

	got := store.Get(id)
	require.NotNil(t, got)
	assert.True(t, got.Answered)

	// Unknown IDs are a no-op.
	store.MarkAnswered("missing")
}

func TestRecordSelectionOverwrites(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(1))

	store.RecordSelection(id, 0, "Yes")
	store.RecordSelection(id, 0, "No")

	got := store.Get(id)
	require.NotNil(t, got)
	assert.Equal(t, map[int]string{0: "No"}, got.Selections)
}

func TestRecordSelectionIgnoredAfterAnswered(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(1))
	store.MarkAnswered(id)

	store.RecordSelection(id, 0, "Yes")

	got := store.Get(id)
	require.NotNil(t, got)
	assert.Empty(t, got.Selections)
}

func TestClaimForAnswering(t *testing.T) {
	store := NewStore(testLogger())
	id := store.Register(sampleQuestion(1))

	require.True(t, store.ClaimForAnswering(id))
	assert.False(t, store.ClaimForAnswering(id), "second claim must fail while delivery is in flight")

	store.ReleaseClaim(id)
	require.True(t, store.ClaimForAnswering(id), "released question is claimable again")

	store.MarkAnswered(id)
	store.ReleaseClaim(id)
	assert.False(t, store.ClaimForAnswering(id), "answered question is never claimable")

	assert.False(t, store.ClaimForAnswering("missing"))
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	store := NewStore(testLogger())
	oldID := store.Register(sampleQuestion(1))
	youngID := store.Register(sampleQuestion(2))
	answeredYoungID := store.Register(sampleQuestion(3))
	store.MarkAnswered(answeredYoungID)

	// Backdate the first entry past the age threshold.
	store.mu.Lock()
	store.entries[oldID].CreatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	removed := store.Sweep(time.Hour)
	assert.Equal(t, 1, removed)

	assert.Nil(t, store.Get(oldID))
	assert.Nil(t, store.GetByMessageID(1), "message index must be cleaned too")
	assert.NotNil(t, store.Get(youngID))
	assert.NotNil(t, store.Get(answeredYoungID), "young answered entries survive the sweep")
	assert.Equal(t, 2, store.Len())
}

func TestSweepRemovesAnsweredAndUnansweredAlike(t *testing.T) {
	store := NewStore(testLogger())
	a := store.Register(sampleQuestion(1))
	b := store.Register(sampleQuestion(2))
	store.MarkAnswered(a)

	store.mu.Lock()
	for _, q := range store.entries {
		q.CreatedAt = time.Now().Add(-2 * time.Hour)
	}
	store.mu.Unlock()

	assert.Equal(t, 2, store.Sweep(time.Hour))
	assert.Nil(t, store.Get(a))
	assert.Nil(t, store.Get(b))
	assert.Equal(t, 0, store.Len())
}
