package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchud/unalog2/internal/filter"
)

func newTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return NewPostgresStore(db), ctx
}

func mustUser(t *testing.T, ctx context.Context, s *PostgresStore, name string, private bool) User {
	t.Helper()
	u, err := s.CreateUser(ctx, User{Username: name, IsActive: true}, UserProfile{IsPrivate: private})
	require.NoError(t, err)
	return u
}

func mustEntry(t *testing.T, ctx context.Context, s *PostgresStore, w EntryWrite) int64 {
	t.Helper()
	id, err := s.CreateEntry(ctx, w)
	require.NoError(t, err)
	return id
}

func listIDs(t *testing.T, ctx context.Context, s *PostgresStore, q EntryQuery) []int64 {
	t.Helper()
	entries, _, err := s.ListEntries(ctx, q)
	require.NoError(t, err)
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestCreateEntryRoundTripPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)

	id := mustEntry(t, ctx, s, EntryWrite{
		UserID: alice.ID,
		Title:  "Example",
		URL:    "http://example.com/",
		Tags:   []string{"unalog", "yeah"},
	})

	entries, total, err := s.ListEntries(ctx, EntryQuery{Gated: true})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	got := entries[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, []string{"unalog", "yeah"}, got.Tags)
	assert.Equal(t, Fingerprint("http://example.com/"), got.URLMD5)
	assert.False(t, got.IsPrivate)

	pending, err := s.PendingOutboxCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestEntriesShareURLRowPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	bob := mustUser(t, ctx, s, "bob", false)

	first := mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "a", URL: "http://example.com/"})
	second := mustEntry(t, ctx, s, EntryWrite{UserID: bob.ID, Title: "b", URL: "http://example.com/"})

	a, err := s.GetEntry(ctx, first)
	require.NoError(t, err)
	b, err := s.GetEntry(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, a.URLID, b.URLID)

	others, err := s.OtherCount(ctx, first, a.URLID)
	require.NoError(t, err)
	assert.Equal(t, 1, others)

	url, err := s.GetURLByMD5(ctx, a.URLMD5)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", url.Value)
}

func TestGateHidesPrivateEntriesAndUsersPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	hermit := mustUser(t, ctx, s, "hermit", true)

	public := mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "pub", URL: "http://a.example/"})
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "priv", URL: "http://b.example/", IsPrivate: true})
	hidden := mustEntry(t, ctx, s, EntryWrite{UserID: hermit.ID, Title: "h", URL: "http://c.example/"})

	assert.Equal(t, []int64{public}, listIDs(t, ctx, s, EntryQuery{Gated: true}))
	assert.Len(t, listIDs(t, ctx, s, EntryQuery{OwnerID: alice.ID}), 2)
	assert.Equal(t, []int64{hidden}, listIDs(t, ctx, s, EntryQuery{OwnerID: hermit.ID}))
}

func TestDeactivatedOwnerHiddenEverywherePostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "pub", URL: "http://a.example/", Tags: []string{"go"}})

	require.NoError(t, s.SetUserActive(ctx, alice.ID, false))

	assert.Empty(t, listIDs(t, ctx, s, EntryQuery{Gated: true}))
	assert.Empty(t, listIDs(t, ctx, s, EntryQuery{OwnerID: alice.ID}))
	assert.Empty(t, listIDs(t, ctx, s, EntryQuery{TagName: "go"}))

	items, err := s.ClaimOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, OutboxUpsert, items[0].Op)
	assert.Equal(t, OutboxReindexUser, items[1].Op)
	assert.Equal(t, alice.ID, items[1].UserID)
}

func TestExactTagFilterPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "s", URL: "http://a.example/", Tags: []string{"spam"}})
	spammy := mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "t", URL: "http://b.example/", Tags: []string{"spammy"}})

	rule, err := filter.New("tag", "spam", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{spammy}, listIDs(t, ctx, s, EntryQuery{Gated: true, Exclude: []filter.Rule{rule}}))

	rule.Match = filter.Substring
	assert.Empty(t, listIDs(t, ctx, s, EntryQuery{Gated: true, Exclude: []filter.Rule{rule}}))
}

func TestGroupScopePostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	bob := mustUser(t, ctx, s, "bob", false)
	club, err := s.CreateGroup(ctx, "club", GroupProfile{IsPrivate: true})
	require.NoError(t, err)
	require.NoError(t, s.AddGroupMember(ctx, club.ID, alice.ID))

	shared := mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "s", URL: "http://a.example/", IsPrivate: true, GroupIDs: []int64{club.ID}})
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "t", URL: "http://b.example/"})

	assert.Equal(t, []int64{shared}, listIDs(t, ctx, s, EntryQuery{GroupID: club.ID}))
	assert.Empty(t, listIDs(t, ctx, s, EntryQuery{GroupID: club.ID, Gated: true}))

	ok, err := s.EntrySharedWith(ctx, shared, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.EntrySharedWith(ctx, shared, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetEntry(ctx, shared)
	require.NoError(t, err)
	assert.Equal(t, []string{"club"}, got.Groups)
}

func TestUpdateAndDeleteEntryPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	id := mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "a", URL: "http://a.example/", Tags: []string{"x", "y"}})

	require.NoError(t, s.UpdateEntry(ctx, id, EntryWrite{UserID: alice.ID, Title: "b", URL: "http://a.example/", Tags: []string{"y", "z"}}))
	updated, err := s.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.Equal(t, []string{"y", "z"}, updated.Tags)

	require.NoError(t, s.DeleteEntry(ctx, id))
	_, err = s.GetEntry(ctx, id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, s.DeleteEntry(ctx, id), sql.ErrNoRows)
}

func TestTagCountsPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "a", URL: "http://a.example/", Tags: []string{"go", "db"}})
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "b", URL: "http://b.example/", Tags: []string{"go"}})
	mustEntry(t, ctx, s, EntryWrite{UserID: alice.ID, Title: "c", URL: "http://c.example/", Tags: []string{"secret"}, IsPrivate: true})

	counts, err := s.TagCounts(ctx, TagCountQuery{Gated: true})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "go", counts[0].Name)
	assert.Equal(t, 2, counts[0].Count)

	alpha, err := s.TagCounts(ctx, TagCountQuery{OwnerID: alice.ID, Order: TagOrderAlpha})
	require.NoError(t, err)
	require.Len(t, alpha, 3)
	assert.Equal(t, "db", alpha[0].Name)
}

func TestOutboxFailureClosesAfterMaxAttemptsPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)
	require.NoError(t, s.EnqueueReindexUser(ctx, alice.ID))

	items, err := s.ClaimOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	again, err := s.ClaimOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows are not handed out twice")

	require.NoError(t, s.FailOutbox(ctx, items[0].ID, "boom", 2))
	items, err = s.ClaimOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)

	require.NoError(t, s.FailOutbox(ctx, items[0].ID, "boom", 2))
	pending, err := s.PendingOutboxCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestFiltersCRUDPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := mustUser(t, ctx, s, "alice", false)

	f, err := s.CreateFilter(ctx, Filter{UserID: alice.ID, AttrName: "tag", Value: "spam", IsExact: true, IsActive: true})
	require.NoError(t, err)
	f.IsActive = false
	_, err = s.UpdateFilter(ctx, f)
	require.NoError(t, err)

	list, err := s.ListFilters(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)

	require.NoError(t, s.DeleteFilter(ctx, f.ID))
	assert.ErrorIs(t, s.DeleteFilter(ctx, f.ID), sql.ErrNoRows)
}

func TestCreateUserConflictPostgres(t *testing.T) {
	s, ctx := newTestStore(t)
	mustUser(t, ctx, s, "alice", false)
	_, err := s.CreateUser(ctx, User{Username: "alice", IsActive: true}, UserProfile{})
	assert.ErrorIs(t, err, ErrConflict)
}
