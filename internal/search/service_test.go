package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dchud/unalog2/internal/filter"
	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/store"
	"github.com/dchud/unalog2/internal/visibility"
)

func TestServiceUsesPrimaryAndRechecksHits(t *testing.T) {
	public := store.Entry{ID: 1, UserID: 2, OwnerActive: true}
	private := store.Entry{ID: 2, UserID: 2, OwnerActive: true, IsPrivate: true}
	entries := newMemEntries(public, private)
	primary := &stubSearcher{ids: []int64{2, 1, 77}, healthy: true}
	svc := NewService(primary, NewPgFTS(entries), entries, logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "go", Viewer: visibility.Viewer{UserID: 9}})

	assert.Equal(t, BackendMeili, resp.Backend)
	assert.Len(t, resp.Entries, 1)
	assert.Equal(t, int64(1), resp.Entries[0].ID)
	assert.Equal(t, 1, resp.Total)
}

func TestServicePrimaryKeepsExactRuleCaseSensitive(t *testing.T) {
	shouty := store.Entry{ID: 1, UserID: 2, OwnerActive: true, Tags: []string{"Spam"}}
	quiet := store.Entry{ID: 2, UserID: 2, OwnerActive: true, Tags: []string{"spam"}}
	entries := newMemEntries(shouty, quiet)
	primary := &stubSearcher{ids: []int64{1, 2}, healthy: true}
	svc := NewService(primary, NewPgFTS(entries), entries, logging.Discard())
	spam, err := filter.New("tag", "spam", true)
	assert.NoError(t, err)

	q := Query{Text: "go", Viewer: visibility.Viewer{UserID: 9}, Exclude: []filter.Rule{spam}}
	resp := svc.Search(context.Background(), q)

	assert.Equal(t, BackendMeili, resp.Backend)
	assert.Len(t, resp.Entries, 1)
	assert.Equal(t, int64(1), resp.Entries[0].ID)
	assert.NotContains(t, FilterExpression(q), "spam")
}

func TestServicePrimaryTotalCountsOffset(t *testing.T) {
	entries := newMemEntries(store.Entry{ID: 1, UserID: 2, OwnerActive: true})
	primary := &stubSearcher{ids: []int64{1}, healthy: true}
	svc := NewService(primary, NewPgFTS(entries), entries, logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "go", Offset: 50})

	assert.Equal(t, 51, resp.Total)
}

func TestServiceFallsBackWhenPrimaryFails(t *testing.T) {
	entries := newMemEntries(store.Entry{ID: 1, UserID: 2, OwnerActive: true})
	primary := &stubSearcher{err: errors.New("down"), healthy: true}
	svc := NewService(primary, NewPgFTS(entries), entries, logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "go"})

	assert.Equal(t, BackendPgFTS, resp.Backend)
	assert.Len(t, resp.Entries, 1)
	assert.Equal(t, 1, primary.calls)
}

func TestServiceSkipsUnhealthyPrimary(t *testing.T) {
	entries := newMemEntries()
	primary := &stubSearcher{healthy: false}
	svc := NewService(primary, NewPgFTS(entries), entries, logging.Discard())

	resp := svc.Search(context.Background(), Query{Text: "go"})

	assert.Equal(t, BackendPgFTS, resp.Backend)
	assert.Zero(t, primary.calls)
}

func TestServiceEmptyQuery(t *testing.T) {
	svc := NewService(nil, NewPgFTS(newMemEntries()), newMemEntries(), logging.Discard())
	resp := svc.Search(context.Background(), Query{Text: "   "})
	assert.Empty(t, resp.Entries)
	assert.Empty(t, resp.Backend)
}
