package search

import (
	"context"
	"strings"

	"github.com/dchud/unalog2/internal/store"
)

type entryLister interface {
	ListEntries(ctx context.Context, q store.EntryQuery) ([]store.Entry, int, error)
}

// PgFTS searches the generated tsvector column of entries under the same
// privacy gate and filter clauses as listings.
type PgFTS struct {
	entries entryLister
}

func NewPgFTS(entries entryLister) *PgFTS {
	return &PgFTS{entries: entries}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]store.Entry, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return []store.Entry{}, 0, nil
	}
	return p.entries.ListEntries(ctx, store.EntryQuery{
		Text:     q.Text,
		Gated:    true,
		ViewerID: q.Viewer.UserID,
		Exclude:  q.Exclude,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
}
