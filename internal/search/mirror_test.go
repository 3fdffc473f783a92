package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/store"
)

func entriesFor(userID int64, ids ...int64) []store.Entry {
	out := make([]store.Entry, len(ids))
	for i, id := range ids {
		out[i] = store.Entry{ID: id, UserID: userID, Username: "u", OwnerActive: true, Title: "t"}
	}
	return out
}

func TestReindexBatchesAndCommits(t *testing.T) {
	ids := make([]int64, 12)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	idx := newMemIndex()
	mirror := NewMirror(idx, newMemEntries(entriesFor(1, ids...)...), logging.Discard(), 5, 2)

	report, err := mirror.Reindex(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Submitted)
	assert.Equal(t, 3, report.Submissions)
	assert.Equal(t, 2, report.Commits)
	assert.Equal(t, 2, idx.commits)
	assert.Len(t, idx.snapshot(), 12)
}

func TestReindexContinuesPastFailedSubmission(t *testing.T) {
	idx := newMemIndex()
	idx.failOn[3] = true
	mirror := NewMirror(idx, newMemEntries(entriesFor(1, 1, 2, 3, 4, 5, 6, 7)...), logging.Discard(), 2, 50)

	report, err := mirror.Reindex(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 4}, report.Failed)
	assert.Equal(t, 5, report.Submitted)
	docs := idx.snapshot()
	assert.Contains(t, docs, int64(7))
	assert.NotContains(t, docs, int64(3))
}

func TestReindexUserReplacesOnlyThatUser(t *testing.T) {
	idx := newMemIndex()
	entries := append(entriesFor(1, 1, 2), entriesFor(2, 3)...)
	mirror := NewMirror(idx, newMemEntries(entries...), logging.Discard(), 5, 50)
	_, err := mirror.Reindex(context.Background(), 0)
	require.NoError(t, err)

	idx.docs[99] = Document{ID: 99, UserID: 1}
	idx.calls = nil
	report, err := mirror.ReindexUser(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, []string{"delete_by_user", "upsert"}, idx.calls)
	docs := idx.snapshot()
	assert.NotContains(t, docs, int64(99))
	assert.Contains(t, docs, int64(3))
}

func TestDeleteThenCreateIsIdempotent(t *testing.T) {
	entry := entriesFor(1, 5)[0]
	entry.Tags = []string{"go"}

	once := newMemIndex()
	m1 := NewMirror(once, newMemEntries(entry), logging.Discard(), 5, 50)
	m1.DeleteEntry(5)
	require.NoError(t, m1.SyncEntry(context.Background(), 5))

	twice := newMemIndex()
	m2 := NewMirror(twice, newMemEntries(entry), logging.Discard(), 5, 50)
	for i := 0; i < 2; i++ {
		m2.DeleteEntry(5)
		require.NoError(t, m2.SyncEntry(context.Background(), 5))
	}

	assert.Equal(t, once.snapshot(), twice.snapshot())
}

func TestSyncEntryDeletesVanishedEntry(t *testing.T) {
	idx := newMemIndex()
	idx.docs[8] = Document{ID: 8}
	mirror := NewMirror(idx, newMemEntries(), logging.Discard(), 5, 50)

	require.NoError(t, mirror.SyncEntry(context.Background(), 8))
	assert.Empty(t, idx.snapshot())
}

func TestZap(t *testing.T) {
	idx := newMemIndex()
	idx.docs[1] = Document{ID: 1, UserID: 1}
	idx.docs[2] = Document{ID: 2, UserID: 2}
	mirror := NewMirror(idx, newMemEntries(), logging.Discard(), 5, 50)

	require.NoError(t, mirror.Zap(1))
	assert.Len(t, idx.snapshot(), 1)
	require.NoError(t, mirror.Zap(0))
	assert.Empty(t, idx.snapshot())
	assert.Equal(t, 2, idx.commits)
}

func TestMirrorWithoutIndex(t *testing.T) {
	mirror := NewMirror(nil, newMemEntries(), logging.Discard(), 5, 50)

	mirror.DeleteEntry(1)
	_, err := mirror.Reindex(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, mirror.Zap(0), ErrUnavailable)
}
