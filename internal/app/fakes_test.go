package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dchud/unalog2/internal/config"
	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/search"
	"github.com/dchud/unalog2/internal/session"
	"github.com/dchud/unalog2/internal/snapshot"
	"github.com/dchud/unalog2/internal/store"
)

// fakeStore implements dataStore. Unset funcs behave like an empty
// database.
type fakeStore struct {
	getUserByNameFn      func(context.Context, string) (store.User, error)
	getUserByIDFn        func(context.Context, int64) (store.User, error)
	setPasswordFn        func(context.Context, int64, string) error
	setUserActiveFn      func(context.Context, int64, bool) error
	getUserProfileFn     func(context.Context, int64) (store.UserProfile, error)
	updateUserProfileFn  func(context.Context, int64, bool, bool) (bool, error)
	getGroupByNameFn     func(context.Context, string) (store.Group, error)
	groupsByNameFn       func(context.Context, []string) ([]store.Group, error)
	groupProfileFn       func(context.Context, int64) (store.GroupProfile, error)
	isGroupMemberFn      func(context.Context, int64, int64) (bool, error)
	userGroupsFn         func(context.Context, int64) ([]store.Group, error)
	getURLByMD5Fn        func(context.Context, string) (store.URL, error)
	listEntriesFn        func(context.Context, store.EntryQuery) ([]store.Entry, int, error)
	tagCountsFn          func(context.Context, store.TagCountQuery) ([]store.TagCount, error)
	getEntryFn           func(context.Context, int64) (store.Entry, error)
	ownerEntryIDsByURLFn func(context.Context, int64, string) ([]int64, error)
	otherCountFn         func(context.Context, int64, int64) (int, error)
	entrySharedWithFn    func(context.Context, int64, int64) (bool, error)
	createEntryFn        func(context.Context, store.EntryWrite) (int64, error)
	updateEntryFn        func(context.Context, int64, store.EntryWrite) error
	deleteEntryFn        func(context.Context, int64) error
	listFiltersFn        func(context.Context, int64) ([]store.Filter, error)
	getFilterFn          func(context.Context, int64) (store.Filter, error)
	createFilterFn       func(context.Context, store.Filter) (store.Filter, error)
	updateFilterFn       func(context.Context, store.Filter) (store.Filter, error)
	deleteFilterFn       func(context.Context, int64) error
	pingErr              error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetUserByName(ctx context.Context, name string) (store.User, error) {
	if f.getUserByNameFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return f.getUserByNameFn(ctx, name)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	if f.getUserByIDFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return f.getUserByIDFn(ctx, id)
}

func (f *fakeStore) SetPassword(ctx context.Context, id int64, hash string) error {
	if f.setPasswordFn == nil {
		return nil
	}
	return f.setPasswordFn(ctx, id, hash)
}

func (f *fakeStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	if f.setUserActiveFn == nil {
		return nil
	}
	return f.setUserActiveFn(ctx, id, active)
}

func (f *fakeStore) GetUserProfile(ctx context.Context, id int64) (store.UserProfile, error) {
	if f.getUserProfileFn == nil {
		return store.UserProfile{UserID: id}, nil
	}
	return f.getUserProfileFn(ctx, id)
}

func (f *fakeStore) UpdateUserProfile(ctx context.Context, id int64, private, defaultPrivate bool) (bool, error) {
	if f.updateUserProfileFn == nil {
		return false, nil
	}
	return f.updateUserProfileFn(ctx, id, private, defaultPrivate)
}

func (f *fakeStore) GetGroupByName(ctx context.Context, name string) (store.Group, error) {
	if f.getGroupByNameFn == nil {
		return store.Group{}, sql.ErrNoRows
	}
	return f.getGroupByNameFn(ctx, name)
}

func (f *fakeStore) GroupsByName(ctx context.Context, names []string) ([]store.Group, error) {
	if f.groupsByNameFn == nil {
		return nil, nil
	}
	return f.groupsByNameFn(ctx, names)
}

func (f *fakeStore) GroupProfile(ctx context.Context, id int64) (store.GroupProfile, error) {
	if f.groupProfileFn == nil {
		return store.GroupProfile{GroupID: id}, nil
	}
	return f.groupProfileFn(ctx, id)
}

func (f *fakeStore) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	if f.isGroupMemberFn == nil {
		return false, nil
	}
	return f.isGroupMemberFn(ctx, groupID, userID)
}

func (f *fakeStore) UserGroups(ctx context.Context, id int64) ([]store.Group, error) {
	if f.userGroupsFn == nil {
		return nil, nil
	}
	return f.userGroupsFn(ctx, id)
}

func (f *fakeStore) GetURLByMD5(ctx context.Context, md5 string) (store.URL, error) {
	if f.getURLByMD5Fn == nil {
		return store.URL{}, sql.ErrNoRows
	}
	return f.getURLByMD5Fn(ctx, md5)
}

func (f *fakeStore) ListEntries(ctx context.Context, q store.EntryQuery) ([]store.Entry, int, error) {
	if f.listEntriesFn == nil {
		return nil, 0, nil
	}
	return f.listEntriesFn(ctx, q)
}

func (f *fakeStore) TagCounts(ctx context.Context, q store.TagCountQuery) ([]store.TagCount, error) {
	if f.tagCountsFn == nil {
		return nil, nil
	}
	return f.tagCountsFn(ctx, q)
}

func (f *fakeStore) GetEntry(ctx context.Context, id int64) (store.Entry, error) {
	if f.getEntryFn == nil {
		return store.Entry{}, sql.ErrNoRows
	}
	return f.getEntryFn(ctx, id)
}

func (f *fakeStore) OwnerEntryIDsByURL(ctx context.Context, userID int64, url string) ([]int64, error) {
	if f.ownerEntryIDsByURLFn == nil {
		return nil, nil
	}
	return f.ownerEntryIDsByURLFn(ctx, userID, url)
}

func (f *fakeStore) OtherCount(ctx context.Context, entryID, urlID int64) (int, error) {
	if f.otherCountFn == nil {
		return 0, nil
	}
	return f.otherCountFn(ctx, entryID, urlID)
}

func (f *fakeStore) EntrySharedWith(ctx context.Context, entryID, userID int64) (bool, error) {
	if f.entrySharedWithFn == nil {
		return false, nil
	}
	return f.entrySharedWithFn(ctx, entryID, userID)
}

func (f *fakeStore) CreateEntry(ctx context.Context, w store.EntryWrite) (int64, error) {
	if f.createEntryFn == nil {
		return 0, sql.ErrConnDone
	}
	return f.createEntryFn(ctx, w)
}

func (f *fakeStore) UpdateEntry(ctx context.Context, id int64, w store.EntryWrite) error {
	if f.updateEntryFn == nil {
		return nil
	}
	return f.updateEntryFn(ctx, id, w)
}

func (f *fakeStore) DeleteEntry(ctx context.Context, id int64) error {
	if f.deleteEntryFn == nil {
		return nil
	}
	return f.deleteEntryFn(ctx, id)
}

func (f *fakeStore) ListFilters(ctx context.Context, userID int64) ([]store.Filter, error) {
	if f.listFiltersFn == nil {
		return nil, nil
	}
	return f.listFiltersFn(ctx, userID)
}

func (f *fakeStore) GetFilter(ctx context.Context, id int64) (store.Filter, error) {
	if f.getFilterFn == nil {
		return store.Filter{}, sql.ErrNoRows
	}
	return f.getFilterFn(ctx, id)
}

func (f *fakeStore) CreateFilter(ctx context.Context, row store.Filter) (store.Filter, error) {
	if f.createFilterFn == nil {
		row.ID = 1
		return row, nil
	}
	return f.createFilterFn(ctx, row)
}

func (f *fakeStore) UpdateFilter(ctx context.Context, row store.Filter) (store.Filter, error) {
	if f.updateFilterFn == nil {
		return row, nil
	}
	return f.updateFilterFn(ctx, row)
}

func (f *fakeStore) DeleteFilter(ctx context.Context, id int64) error {
	if f.deleteFilterFn == nil {
		return nil
	}
	return f.deleteFilterFn(ctx, id)
}

type memSessions struct {
	mu      sync.Mutex
	data    map[string]session.Data
	revoked []int64
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string]session.Data{}}
}

func (m *memSessions) Save(_ context.Context, hash string, data session.Data, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[hash] = data
	return nil
}

func (m *memSessions) Lookup(_ context.Context, hash string) (session.Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[hash]
	if !ok {
		return session.Data{}, session.ErrNotFound
	}
	return data, nil
}

func (m *memSessions) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return nil
}

func (m *memSessions) RevokeUser(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, userID)
	n := 0
	for hash, data := range m.data {
		if data.UserID == userID {
			delete(m.data, hash)
			n++
		}
	}
	return n, nil
}

// fakeMirror records the calls the service makes. calls is shared with
// the fake store in delete ordering tests.
type fakeMirror struct {
	calls   *[]string
	healthy bool
	zapErr  error
	zapped  []int64
}

func (m *fakeMirror) record(call string) {
	if m.calls != nil {
		*m.calls = append(*m.calls, call)
	}
}

func (m *fakeMirror) DeleteEntry(int64) { m.record("index.delete") }

func (m *fakeMirror) Reindex(context.Context, int64) (search.ReindexReport, error) {
	m.record("index.reindex")
	return search.ReindexReport{Submitted: 3, Submissions: 1, Commits: 1}, nil
}

func (m *fakeMirror) ReindexUser(context.Context, int64) (search.ReindexReport, error) {
	m.record("index.reindex_user")
	return search.ReindexReport{Submitted: 1, Submissions: 1, Commits: 1}, nil
}

func (m *fakeMirror) Zap(userID int64) error {
	m.record("index.zap")
	m.zapped = append(m.zapped, userID)
	return m.zapErr
}

func (m *fakeMirror) Healthy() bool { return m.healthy }

type fakeSearcher struct {
	last search.Query
	resp search.Response
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) search.Response {
	f.last = q
	return f.resp
}

// fakeSnapshots returns page for every url and counts captures.
type fakeSnapshots struct {
	page  snapshot.Page
	calls int
}

func (f *fakeSnapshots) Capture(context.Context, string) (snapshot.Page, error) {
	f.calls++
	return f.page, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg:      config.Config{PageSize: 50, SessionTTL: time.Hour},
		store:    fs,
		sessions: newMemSessions(),
		notify:   func() {},
		log:      logging.Discard(),
	}
}

var (
	alice = Session{UserID: 1, Username: "alice"}
	bob   = Session{UserID: 2, Username: "bob"}
	staff = Session{UserID: 9, Username: "root", Staff: true}
)

func boolPtr(v bool) *bool { return &v }
