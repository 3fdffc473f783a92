package search

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dchud/unalog2/internal/filter"
	"github.com/dchud/unalog2/internal/store"
	"github.com/dchud/unalog2/internal/visibility"
)

const (
	BackendMeili = "meilisearch"
	BackendPgFTS = "postgres"
)

// Response is one page of search results. On the Meilisearch path Total is
// the index estimate less the hits this page dropped on recheck; hits
// dropped on other pages are not known.
type Response struct {
	Entries []store.Entry
	Total   int
	Query   string
	Backend string
}

type entryLoader interface {
	GetEntries(ctx context.Context, ids []int64) ([]store.Entry, error)
}

// Service tries the primary searcher first and falls back to PgFTS when
// it is unhealthy or fails.
type Service struct {
	primary  Searcher
	fallback *PgFTS
	entries  entryLoader
	log      logrus.FieldLogger
}

// NewService creates a search service. primary may be nil.
func NewService(primary Searcher, fallback *PgFTS, entries entryLoader, log logrus.FieldLogger) *Service {
	return &Service{primary: primary, fallback: fallback, entries: entries, log: log.WithField("component", "search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Response{Entries: []store.Entry{}, Query: q.Text}
	}

	if s.primary != nil && s.primary.Healthy() {
		entries, total, err := s.searchPrimary(ctx, q)
		if err == nil {
			return Response{Entries: entries, Total: total, Query: q.Text, Backend: BackendMeili}
		}
		s.log.WithError(err).Warn("primary search failed, falling back to postgres")
	}

	entries, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("postgres search failed")
		return Response{Entries: []store.Entry{}, Query: q.Text, Backend: BackendPgFTS}
	}
	return Response{Entries: entries, Total: total, Query: q.Text, Backend: BackendPgFTS}
}

// searchPrimary loads hits from the relational store in rank order and
// re-checks each against current visibility and the viewer's rules, so a
// lagging index never leaks an entry.
func (s *Service) searchPrimary(ctx context.Context, q Query) ([]store.Entry, int, error) {
	ids, total, err := s.primary.Search(q)
	if err != nil {
		return nil, 0, err
	}
	loaded, err := s.entries.GetEntries(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[int64]store.Entry, len(loaded))
	for _, e := range loaded {
		byID[e.ID] = e
	}

	entries := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		if !Admit(q, e) {
			continue
		}
		entries = append(entries, e)
	}
	total -= len(ids) - len(entries)
	if floor := q.Offset + len(entries); total < floor {
		total = floor
	}
	return entries, total, nil
}

// Admit reports whether e may be returned to the viewer of q.
func Admit(q Query, e store.Entry) bool {
	subject := visibility.Subject{
		OwnerID:          e.UserID,
		OwnerActive:      e.OwnerActive,
		OwnerPrivate:     e.OwnerPrivate,
		EntryPrivate:     e.IsPrivate,
		SharedWithViewer: overlaps(e.Groups, q.ViewerGroups),
	}
	if !visibility.Visible(q.Viewer, subject) {
		return false
	}
	return !filter.Excluded(q.Exclude, filter.Target{Username: e.Username, Tags: e.Tags, URL: e.URL})
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
