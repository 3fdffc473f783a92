package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dchud/unalog2/internal/auth"
	"github.com/dchud/unalog2/internal/config"
	"github.com/dchud/unalog2/internal/filter"
	"github.com/dchud/unalog2/internal/logging"
	"github.com/dchud/unalog2/internal/rbac"
	"github.com/dchud/unalog2/internal/search"
	"github.com/dchud/unalog2/internal/session"
	"github.com/dchud/unalog2/internal/snapshot"
	"github.com/dchud/unalog2/internal/store"
	"github.com/dchud/unalog2/internal/tagging"
	"github.com/dchud/unalog2/internal/visibility"
)

const maxURLLength = 500

type dataStore interface {
	Ping(context.Context) error
	GetUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, int64) (store.User, error)
	SetPassword(context.Context, int64, string) error
	SetUserActive(context.Context, int64, bool) error
	GetUserProfile(context.Context, int64) (store.UserProfile, error)
	UpdateUserProfile(context.Context, int64, bool, bool) (bool, error)
	GetGroupByName(context.Context, string) (store.Group, error)
	GroupsByName(context.Context, []string) ([]store.Group, error)
	GroupProfile(context.Context, int64) (store.GroupProfile, error)
	IsGroupMember(context.Context, int64, int64) (bool, error)
	UserGroups(context.Context, int64) ([]store.Group, error)
	GetURLByMD5(context.Context, string) (store.URL, error)
	ListEntries(context.Context, store.EntryQuery) ([]store.Entry, int, error)
	TagCounts(context.Context, store.TagCountQuery) ([]store.TagCount, error)
	GetEntry(context.Context, int64) (store.Entry, error)
	OwnerEntryIDsByURL(context.Context, int64, string) ([]int64, error)
	OtherCount(context.Context, int64, int64) (int, error)
	EntrySharedWith(context.Context, int64, int64) (bool, error)
	CreateEntry(context.Context, store.EntryWrite) (int64, error)
	UpdateEntry(context.Context, int64, store.EntryWrite) error
	DeleteEntry(context.Context, int64) error
	ListFilters(context.Context, int64) ([]store.Filter, error)
	GetFilter(context.Context, int64) (store.Filter, error)
	CreateFilter(context.Context, store.Filter) (store.Filter, error)
	UpdateFilter(context.Context, store.Filter) (store.Filter, error)
	DeleteFilter(context.Context, int64) error
}

type sessionStore interface {
	Save(context.Context, string, session.Data, time.Duration) error
	Lookup(context.Context, string) (session.Data, error)
	Revoke(context.Context, string) error
	RevokeUser(context.Context, int64) (int, error)
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
}

type indexMirror interface {
	DeleteEntry(int64)
	Reindex(context.Context, int64) (search.ReindexReport, error)
	ReindexUser(context.Context, int64) (search.ReindexReport, error)
	Zap(int64) error
	Healthy() bool
}

type snapshotter interface {
	Capture(context.Context, string) (snapshot.Page, error)
}

// Deps are the collaborators of a Service. Nil members disable the
// feature they back.
type Deps struct {
	Store     *store.PostgresStore
	Sessions  *session.RedisStore
	Search    *search.Service
	Mirror    *search.Mirror
	Relay     *search.Relay
	Snapshots *snapshot.Chrome
	Log       logrus.FieldLogger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	search    searcher
	mirror    indexMirror
	snapshots snapshotter
	notify    func()
	log       logrus.FieldLogger
}

func New(cfg config.Config, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	s := &Service{
		cfg:    cfg,
		store:  deps.Store,
		notify: func() {},
		log:    log.WithField("component", "service"),
	}
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Mirror != nil {
		s.mirror = deps.Mirror
	}
	if deps.Relay != nil {
		s.notify = deps.Relay.Notify
	}
	if deps.Snapshots != nil && cfg.SnapshotEnabled {
		s.snapshots = deps.Snapshots
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SearchHealthy reports whether the search index answers. Listings never
// depend on it.
func (s *Service) SearchHealthy() bool {
	return s.mirror != nil && s.mirror.Healthy()
}

func (s *Service) pageSize() int {
	if s.cfg.PageSize > 0 {
		return s.cfg.PageSize
	}
	return 50
}

func (s *Service) page(page int) (number, limit, offset int) {
	if page < 1 {
		page = 1
	}
	size := s.pageSize()
	return page, size, (page - 1) * size
}

func viewerOf(sess Session) visibility.Viewer {
	if sess.UserID == 0 {
		return visibility.Anonymous()
	}
	return visibility.Viewer{UserID: sess.UserID, Username: sess.Username, Staff: sess.Staff}
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func validation(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func (s *Service) require(sess Session, action rbac.Action) error {
	if sess.UserID == 0 {
		return errUnauthorized
	}
	if !rbac.Can(rbac.For(sess.UserID, sess.Staff), action) {
		return forbidden("Forbidden")
	}
	return nil
}

// viewerRules loads the viewer's active filter rules. Rows with an
// attribute this version does not know are skipped.
func (s *Service) viewerRules(ctx context.Context, userID int64) ([]filter.Rule, error) {
	if userID == 0 {
		return nil, nil
	}
	rows, err := s.store.ListFilters(ctx, userID)
	if err != nil {
		return nil, err
	}
	rules := make([]filter.Rule, 0, len(rows))
	for _, row := range rows {
		attr, err := filter.ParseAttribute(row.AttrName)
		if err != nil {
			s.log.WithFields(logrus.Fields{"filter_id": row.ID, "user_id": userID}).WithError(err).Warn("skipping filter")
			continue
		}
		match := filter.Substring
		if row.IsExact {
			match = filter.Exact
		}
		rules = append(rules, filter.Rule{ID: row.ID, Attr: attr, Match: match, Value: row.Value, Active: row.IsActive})
	}
	return filter.ActiveOnly(rules), nil
}

// resolveOwner loads the user a scope names.
func (s *Service) resolveOwner(ctx context.Context, username string) (store.User, *visibility.Owner, error) {
	user, err := s.store.GetUserByName(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, nil, notFound("User not found")
	}
	if err != nil {
		return store.User{}, nil, err
	}
	profile, err := s.store.GetUserProfile(ctx, user.ID)
	if err != nil {
		return store.User{}, nil, err
	}
	return user, &visibility.Owner{ID: user.ID, Active: user.IsActive, Private: profile.IsPrivate}, nil
}

// ListEntries returns one page of the entries viewer may see in scope,
// newest first.
func (s *Service) ListEntries(ctx context.Context, sess Session, scope Scope, page int) (Listing, error) {
	viewer := viewerOf(sess)
	number, limit, offset := s.page(page)
	listing := Listing{Scope: scope, Entries: []EntryView{}, Page: number, PageSize: limit}

	query := store.EntryQuery{TagName: strings.TrimSpace(scope.Tag), Limit: limit, Offset: offset}
	var target visibility.Target

	if scope.User != "" {
		user, owner, err := s.resolveOwner(ctx, scope.User)
		if err != nil {
			return Listing{}, err
		}
		target.Owner = owner
		query.OwnerID = user.ID
	}
	if scope.Group != "" {
		group, err := s.store.GetGroupByName(ctx, scope.Group)
		if errors.Is(err, sql.ErrNoRows) {
			return Listing{}, notFound("Group not found")
		}
		if err != nil {
			return Listing{}, err
		}
		profile, err := s.store.GroupProfile(ctx, group.ID)
		if err != nil {
			return Listing{}, err
		}
		target.Group = &visibility.Group{ID: group.ID, Private: profile.IsPrivate}
		if viewer.Authenticated() {
			if target.Member, err = s.store.IsGroupMember(ctx, group.ID, viewer.UserID); err != nil {
				return Listing{}, err
			}
		}
		query.GroupID = group.ID
	}
	if scope.URL != "" {
		u, err := s.store.GetURLByMD5(ctx, strings.ToLower(scope.URL))
		if errors.Is(err, sql.ErrNoRows) {
			return Listing{}, notFound("URL not found")
		}
		if err != nil {
			return Listing{}, err
		}
		query.URLID = u.ID
	}

	decision := visibility.Decide(viewer, target)
	if decision.Denied {
		listing.Denied = true
		listing.Message = string(decision.Reason)
		return listing, nil
	}
	query.Gated = decision.Gated
	if decision.ApplyFilters {
		rules, err := s.viewerRules(ctx, viewer.UserID)
		if err != nil {
			return Listing{}, err
		}
		query.Exclude = rules
	}

	entries, total, err := s.store.ListEntries(ctx, query)
	if err != nil {
		return Listing{}, err
	}
	listing.Entries = entryViews(entries)
	listing.Total = total
	return listing, nil
}

// GetEntry returns one entry. Entries the viewer may not see are reported
// as missing.
func (s *Service) GetEntry(ctx context.Context, sess Session, entryID int64) (EntryDetail, error) {
	viewer := viewerOf(sess)
	entry, err := s.store.GetEntry(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return EntryDetail{}, notFound("Entry not found")
	}
	if err != nil {
		return EntryDetail{}, err
	}
	shared := false
	if viewer.Authenticated() && !viewer.Is(entry.UserID) && (entry.IsPrivate || entry.OwnerPrivate) {
		if shared, err = s.store.EntrySharedWith(ctx, entry.ID, viewer.UserID); err != nil {
			return EntryDetail{}, err
		}
	}
	visible := visibility.Visible(viewer, visibility.Subject{
		OwnerID:          entry.UserID,
		OwnerActive:      entry.OwnerActive,
		OwnerPrivate:     entry.OwnerPrivate,
		EntryPrivate:     entry.IsPrivate,
		SharedWithViewer: shared,
	})
	if !visible {
		return EntryDetail{}, notFound("Entry not found")
	}
	others, err := s.store.OtherCount(ctx, entry.ID, entry.URLID)
	if err != nil {
		return EntryDetail{}, err
	}
	return EntryDetail{EntryView: entryView(entry), OtherCount: others}, nil
}

// TagCounts builds a tag cloud, global or for one user, under the same
// gate as listings.
func (s *Service) TagCounts(ctx context.Context, sess Session, username, order string, page int) (TagCloud, error) {
	viewer := viewerOf(sess)
	tagOrder, err := parseTagOrder(order)
	if err != nil {
		return TagCloud{}, err
	}
	cloud := TagCloud{User: username, Order: string(tagOrder), Tags: []TagCountView{}}
	_, limit, offset := s.page(page)
	query := store.TagCountQuery{Order: tagOrder, Limit: limit, Offset: offset}

	var target visibility.Target
	if username != "" {
		user, owner, err := s.resolveOwner(ctx, username)
		if err != nil {
			return TagCloud{}, err
		}
		target.Owner = owner
		query.OwnerID = user.ID
	}
	decision := visibility.Decide(viewer, target)
	if decision.Denied {
		cloud.Denied = true
		cloud.Message = string(decision.Reason)
		return cloud, nil
	}
	query.Gated = decision.Gated
	if decision.ApplyFilters {
		if query.Exclude, err = s.viewerRules(ctx, viewer.UserID); err != nil {
			return TagCloud{}, err
		}
	}

	counts, err := s.store.TagCounts(ctx, query)
	if err != nil {
		return TagCloud{}, err
	}
	for _, c := range counts {
		cloud.Tags = append(cloud.Tags, TagCountView{Name: c.Name, Count: c.Count})
	}
	return cloud, nil
}

func parseTagOrder(order string) (store.TagOrder, error) {
	switch store.TagOrder(strings.ToLower(strings.TrimSpace(order))) {
	case "", store.TagOrderFreq:
		return store.TagOrderFreq, nil
	case store.TagOrderAlpha:
		return store.TagOrderAlpha, nil
	case store.TagOrderRecent:
		return store.TagOrderRecent, nil
	default:
		return "", validation("order must be freq, alpha or recent", map[string]any{"order": order})
	}
}

func (s *Service) Search(ctx context.Context, sess Session, text string, page int) (SearchResult, error) {
	if s.search == nil {
		return SearchResult{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	viewer := viewerOf(sess)
	number, limit, offset := s.page(page)
	q := search.Query{Text: text, Viewer: viewer, Limit: limit, Offset: offset}

	if viewer.Authenticated() {
		groups, err := s.store.UserGroups(ctx, viewer.UserID)
		if err != nil {
			return SearchResult{}, err
		}
		for _, g := range groups {
			q.ViewerGroups = append(q.ViewerGroups, g.Name)
		}
		if q.Exclude, err = s.viewerRules(ctx, viewer.UserID); err != nil {
			return SearchResult{}, err
		}
	}

	resp := s.search.Search(ctx, q)
	return SearchResult{
		Query:    resp.Query,
		Entries:  entryViews(resp.Entries),
		Total:    resp.Total,
		Page:     number,
		PageSize: limit,
		Backend:  resp.Backend,
	}, nil
}

type entryFields struct {
	url      string
	title    string
	comment  string
	content  string
	tags     []string
	groupIDs []int64
}

func (s *Service) validateEntry(ctx context.Context, userID int64, input EntryInput) (entryFields, error) {
	fields := entryFields{
		url:     strings.TrimSpace(input.URL),
		title:   strings.TrimSpace(input.Title),
		comment: input.Comment,
		content: input.Content,
	}
	problems := map[string]string{}
	if fields.url == "" {
		problems["url"] = "url is required"
	} else if len(fields.url) > maxURLLength {
		problems["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	} else if parsed, err := url.Parse(fields.url); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		problems["url"] = "url must be an absolute http or https address"
	}

	// A snapshot may still supply the title; see capture.
	if fields.title == "" && (len(problems) > 0 || s.snapshots == nil) {
		problems["title"] = "title is required"
	}
	if len(problems) > 0 {
		return entryFields{}, validation("Entry is invalid", problems)
	}

	if input.TagList != nil {
		fields.tags = tagging.Normalize(input.TagList)
	} else {
		fields.tags = tagging.Parse(input.Tags)
	}

	groupIDs, err := s.shareGroups(ctx, userID, input.Groups)
	if err != nil {
		return entryFields{}, err
	}
	fields.groupIDs = groupIDs
	return fields, nil
}

// capture fills empty content, and an empty title, from a page snapshot.
// It runs after every cheaper check has passed.
func (s *Service) capture(ctx context.Context, fields *entryFields) error {
	if s.snapshots != nil && strings.TrimSpace(fields.content) == "" {
		page, err := s.snapshots.Capture(ctx, fields.url)
		if err != nil {
			s.log.WithError(err).WithField("url", fields.url).Warn("page snapshot failed")
		} else {
			fields.content = page.Text
			if fields.title == "" {
				fields.title = strings.TrimSpace(page.Title)
			}
		}
	}
	if fields.title == "" {
		return validation("Entry is invalid", map[string]string{"title": "title is required"})
	}
	return nil
}

// shareGroups resolves group names an entry is shared to. The owner must
// belong to each of them.
func (s *Service) shareGroups(ctx context.Context, userID int64, names []string) ([]int64, error) {
	wanted := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		wanted = append(wanted, name)
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	groups, err := s.store.GroupsByName(ctx, wanted)
	if err != nil {
		return nil, err
	}
	found := map[string]int64{}
	for _, g := range groups {
		found[g.Name] = g.ID
	}
	ids := make([]int64, 0, len(wanted))
	for _, name := range wanted {
		id, ok := found[name]
		if !ok {
			return nil, validation("Unknown group", map[string]any{"group": name})
		}
		member, err := s.store.IsGroupMember(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, forbidden(fmt.Sprintf("Not a member of group %s", name))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateEntry saves a new entry for the signed-in user. Saving a url the
// user already has requires input.Confirm.
func (s *Service) CreateEntry(ctx context.Context, sess Session, input EntryInput) (EntryDetail, error) {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return EntryDetail{}, err
	}
	fields, err := s.validateEntry(ctx, sess.UserID, input)
	if err != nil {
		return EntryDetail{}, err
	}

	if !input.Confirm {
		existing, err := s.store.OwnerEntryIDsByURL(ctx, sess.UserID, fields.url)
		if err != nil {
			return EntryDetail{}, err
		}
		if len(existing) > 0 {
			return EntryDetail{}, domainError(http.StatusConflict, "DUPLICATE_ENTRY",
				"You already saved this url; resubmit with confirm to save it again",
				map[string]any{"existing": existing})
		}
	}
	if err := s.capture(ctx, &fields); err != nil {
		return EntryDetail{}, err
	}

	private := false
	if input.IsPrivate != nil {
		private = *input.IsPrivate
	} else {
		profile, err := s.store.GetUserProfile(ctx, sess.UserID)
		if err != nil {
			return EntryDetail{}, err
		}
		private = profile.DefaultToPrivateEntry
	}

	entryID, err := s.store.CreateEntry(ctx, store.EntryWrite{
		UserID:    sess.UserID,
		Title:     fields.title,
		URL:       fields.url,
		Comment:   fields.comment,
		Content:   fields.content,
		IsPrivate: private,
		Tags:      fields.tags,
		GroupIDs:  fields.groupIDs,
	})
	if err != nil {
		return EntryDetail{}, err
	}
	s.notify()
	return s.GetEntry(ctx, sess, entryID)
}

// UpdateEntry replaces an entry's fields. Only the owner may edit; the
// last write wins.
func (s *Service) UpdateEntry(ctx context.Context, sess Session, entryID int64, input EntryInput) (EntryDetail, error) {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return EntryDetail{}, err
	}
	current, err := s.store.GetEntry(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return EntryDetail{}, notFound("Entry not found")
	}
	if err != nil {
		return EntryDetail{}, err
	}
	if current.UserID != sess.UserID {
		return EntryDetail{}, forbidden("Only the owner may edit this entry")
	}
	fields, err := s.validateEntry(ctx, sess.UserID, input)
	if err != nil {
		return EntryDetail{}, err
	}
	if err := s.capture(ctx, &fields); err != nil {
		return EntryDetail{}, err
	}
	private := current.IsPrivate
	if input.IsPrivate != nil {
		private = *input.IsPrivate
	}

	err = s.store.UpdateEntry(ctx, entryID, store.EntryWrite{
		UserID:    sess.UserID,
		Title:     fields.title,
		URL:       fields.url,
		Comment:   fields.comment,
		Content:   fields.content,
		IsPrivate: private,
		Tags:      fields.tags,
		GroupIDs:  fields.groupIDs,
	})
	if err != nil {
		return EntryDetail{}, err
	}
	s.notify()
	return s.GetEntry(ctx, sess, entryID)
}

// DeleteEntry removes an entry. The index document goes first so that a
// failure part way leaves a row without a document, never the reverse.
func (s *Service) DeleteEntry(ctx context.Context, sess Session, entryID int64) error {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return err
	}
	current, err := s.store.GetEntry(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Entry not found")
	}
	if err != nil {
		return err
	}
	if current.UserID != sess.UserID && !rbac.Can(rbac.For(sess.UserID, sess.Staff), rbac.ActionAdmin) {
		return forbidden("Only the owner may delete this entry")
	}
	if s.mirror != nil {
		s.mirror.DeleteEntry(entryID)
	}
	if err := s.store.DeleteEntry(ctx, entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Entry not found")
		}
		return err
	}
	s.notify()
	return nil
}

func (s *Service) GetProfile(ctx context.Context, sess Session) (ProfileView, error) {
	if sess.UserID == 0 {
		return ProfileView{}, errUnauthorized
	}
	profile, err := s.store.GetUserProfile(ctx, sess.UserID)
	if err != nil {
		return ProfileView{}, err
	}
	return ProfileView{Username: sess.Username, IsPrivate: profile.IsPrivate, DefaultToPrivateEntry: profile.DefaultToPrivateEntry}, nil
}

// UpdateProfile changes the privacy flags. Flipping account privacy
// queues a reindex of all the user's documents.
func (s *Service) UpdateProfile(ctx context.Context, sess Session, input ProfileInput) (ProfileView, error) {
	current, err := s.GetProfile(ctx, sess)
	if err != nil {
		return ProfileView{}, err
	}
	if input.IsPrivate != nil {
		current.IsPrivate = *input.IsPrivate
	}
	if input.DefaultToPrivateEntry != nil {
		current.DefaultToPrivateEntry = *input.DefaultToPrivateEntry
	}
	changed, err := s.store.UpdateUserProfile(ctx, sess.UserID, current.IsPrivate, current.DefaultToPrivateEntry)
	if err != nil {
		return ProfileView{}, err
	}
	if changed {
		s.notify()
	}
	return current, nil
}

// SetUserActive activates or deactivates an account. Deactivation also
// ends the user's sessions.
func (s *Service) SetUserActive(ctx context.Context, sess Session, username string, active bool) error {
	if err := s.require(sess, rbac.ActionAdmin); err != nil {
		return err
	}
	user, err := s.store.GetUserByName(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("User not found")
	}
	if err != nil {
		return err
	}
	if err := s.store.SetUserActive(ctx, user.ID, active); err != nil {
		return err
	}
	if !active && s.sessions != nil {
		if _, err := s.sessions.RevokeUser(ctx, user.ID); err != nil {
			s.log.WithError(err).WithField("user_id", user.ID).Warn("revoke sessions failed")
		}
	}
	s.notify()
	return nil
}

func (s *Service) ListFilters(ctx context.Context, sess Session) ([]FilterView, error) {
	if sess.UserID == 0 {
		return nil, errUnauthorized
	}
	rows, err := s.store.ListFilters(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]FilterView, 0, len(rows))
	for _, row := range rows {
		views = append(views, filterView(row))
	}
	return views, nil
}

func filterFromInput(input FilterInput) (filter.Rule, bool, error) {
	rule, err := filter.New(input.Attr, input.Value, input.Exact)
	if err != nil {
		return filter.Rule{}, false, validation(err.Error(), map[string]any{"attr": input.Attr, "value": input.Value})
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	return rule, active, nil
}

func (s *Service) CreateFilter(ctx context.Context, sess Session, input FilterInput) (FilterView, error) {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return FilterView{}, err
	}
	rule, active, err := filterFromInput(input)
	if err != nil {
		return FilterView{}, err
	}
	created, err := s.store.CreateFilter(ctx, store.Filter{
		UserID:   sess.UserID,
		AttrName: string(rule.Attr),
		Value:    rule.Value,
		IsExact:  rule.Exact(),
		IsActive: active,
	})
	if err != nil {
		return FilterView{}, err
	}
	return filterView(created), nil
}

// ownFilter loads a filter of the signed-in user; other users' filters
// are reported missing.
func (s *Service) ownFilter(ctx context.Context, sess Session, filterID int64) (store.Filter, error) {
	f, err := s.store.GetFilter(ctx, filterID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && f.UserID != sess.UserID) {
		return store.Filter{}, notFound("Filter not found")
	}
	return f, err
}

func (s *Service) UpdateFilter(ctx context.Context, sess Session, filterID int64, input FilterInput) (FilterView, error) {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return FilterView{}, err
	}
	current, err := s.ownFilter(ctx, sess, filterID)
	if err != nil {
		return FilterView{}, err
	}
	rule, active, err := filterFromInput(input)
	if err != nil {
		return FilterView{}, err
	}
	current.AttrName = string(rule.Attr)
	current.Value = rule.Value
	current.IsExact = rule.Exact()
	current.IsActive = active
	updated, err := s.store.UpdateFilter(ctx, current)
	if err != nil {
		return FilterView{}, err
	}
	return filterView(updated), nil
}

func (s *Service) DeleteFilter(ctx context.Context, sess Session, filterID int64) error {
	if err := s.require(sess, rbac.ActionWrite); err != nil {
		return err
	}
	if _, err := s.ownFilter(ctx, sess, filterID); err != nil {
		return err
	}
	return s.store.DeleteFilter(ctx, filterID)
}

func (s *Service) indexUser(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, nil
	}
	user, err := s.store.GetUserByName(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("User not found")
	}
	return user.ID, err
}

func mapIndexError(err error) error {
	if errors.Is(err, search.ErrUnavailable) {
		return domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search index is unavailable", nil)
	}
	return err
}

// Reindex resubmits every document, or one user's, to the index.
func (s *Service) Reindex(ctx context.Context, sess Session, username string) (search.ReindexReport, error) {
	if err := s.require(sess, rbac.ActionAdmin); err != nil {
		return search.ReindexReport{}, err
	}
	if s.mirror == nil {
		return search.ReindexReport{}, mapIndexError(search.ErrUnavailable)
	}
	userID, err := s.indexUser(ctx, username)
	if err != nil {
		return search.ReindexReport{}, err
	}
	var report search.ReindexReport
	if userID == 0 {
		report, err = s.mirror.Reindex(ctx, 0)
	} else {
		report, err = s.mirror.ReindexUser(ctx, userID)
	}
	return report, mapIndexError(err)
}

// Zap deletes every document, or one user's, from the index.
func (s *Service) Zap(ctx context.Context, sess Session, username string) error {
	if err := s.require(sess, rbac.ActionAdmin); err != nil {
		return err
	}
	if s.mirror == nil {
		return mapIndexError(search.ErrUnavailable)
	}
	userID, err := s.indexUser(ctx, username)
	if err != nil {
		return err
	}
	return mapIndexError(s.mirror.Zap(userID))
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	if s.sessions == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Sessions are not configured", nil)
	}
	invalid := domainError(http.StatusUnauthorized, "UNAUTHORIZED", auth.ErrInvalidCredentials.Error(), nil)

	user, err := s.store.GetUserByName(ctx, strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, invalid
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, invalid
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return Session{}, invalid
	}
	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.store.SetPassword(ctx, user.ID, hash); err != nil {
				s.log.WithError(err).WithField("user_id", user.ID).Warn("password rehash failed")
			}
		}
	}

	token := auth.NewSessionToken()
	data := session.Data{UserID: user.ID, Username: user.Username, Staff: user.IsStaff}
	if err := s.sessions.Save(ctx, auth.HashToken(token), data, s.cfg.SessionTTL); err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: user.ID, Username: user.Username, Staff: user.IsStaff}, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	if s.sessions == nil || token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(token))
}

// SessionFromToken resolves a bearer token. Sessions of accounts that have
// since been deactivated are rejected.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if s.sessions == nil {
		return Session{}, errUnauthorized
	}
	data, err := s.sessions.Lookup(ctx, auth.HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, errUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, data.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, errUnauthorized
	}
	return Session{Token: token, UserID: user.ID, Username: user.Username, Staff: user.IsStaff}, nil
}
