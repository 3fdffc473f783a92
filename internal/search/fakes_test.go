package search

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dchud/unalog2/internal/store"
)

// memIndex is an in-memory Indexer.
type memIndex struct {
	mu      sync.Mutex
	docs    map[int64]Document
	healthy bool
	commits int
	calls   []string
	failOn  map[int64]bool
}

func newMemIndex() *memIndex {
	return &memIndex{docs: map[int64]Document{}, healthy: true, failOn: map[int64]bool{}}
}

func (m *memIndex) Upsert(docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "upsert")
	for _, d := range docs {
		if m.failOn[d.ID] {
			return errors.New("rejected document")
		}
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memIndex) Delete(ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete")
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *memIndex) DeleteByUser(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete_by_user")
	for id, d := range m.docs {
		if d.UserID == userID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *memIndex) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete_all")
	m.docs = map[int64]Document{}
	return nil
}

func (m *memIndex) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *memIndex) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *memIndex) snapshot() map[int64]Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]Document, len(m.docs))
	for k, v := range m.docs {
		out[k] = v
	}
	return out
}

// memEntries serves entries from a map.
type memEntries struct {
	entries map[int64]store.Entry
}

func newMemEntries(entries ...store.Entry) *memEntries {
	m := &memEntries{entries: map[int64]store.Entry{}}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memEntries) GetEntries(_ context.Context, ids []int64) ([]store.Entry, error) {
	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEntries) EntryIDsAfter(_ context.Context, userID, afterID int64, limit int) ([]int64, error) {
	ids := make([]int64, 0)
	for id, e := range m.entries {
		if id > afterID && (userID == 0 || e.UserID == userID) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memEntries) ListEntries(_ context.Context, q store.EntryQuery) ([]store.Entry, int, error) {
	out := make([]store.Entry, 0)
	for _, e := range m.entries {
		if q.Gated && (e.IsPrivate || e.OwnerPrivate) && e.UserID != q.ViewerID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

// fakeOutbox records relay calls.
type fakeOutbox struct {
	pending   []store.OutboxItem
	completed []int64
	failed    []int64
}

func (f *fakeOutbox) ClaimOutbox(_ context.Context, limit int) ([]store.OutboxItem, error) {
	if len(f.pending) < limit {
		limit = len(f.pending)
	}
	items := f.pending[:limit]
	f.pending = f.pending[limit:]
	return items, nil
}

func (f *fakeOutbox) CompleteOutbox(_ context.Context, id int64) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeOutbox) FailOutbox(_ context.Context, id int64, _ string, _ int) error {
	f.failed = append(f.failed, id)
	return nil
}

type stubSearcher struct {
	ids     []int64
	err     error
	healthy bool
	calls   int
}

func (s *stubSearcher) Search(Query) ([]int64, int, error) {
	s.calls++
	return s.ids, len(s.ids), s.err
}

func (s *stubSearcher) Healthy() bool { return s.healthy }
