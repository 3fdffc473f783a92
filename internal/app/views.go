package app

import (
	"time"

	"github.com/dchud/unalog2/internal/store"
)

// Session is a signed-in viewer.
type Session struct {
	Token    string `json:"token,omitempty"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Staff    bool   `json:"staff"`
}

type EntryView struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	User       string    `json:"user"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	URLMD5     string    `json:"urlMd5"`
	Comment    string    `json:"comment"`
	Content    string    `json:"content,omitempty"`
	IsPrivate  bool      `json:"isPrivate"`
	Tags       []string  `json:"tags"`
	Groups     []string  `json:"groups"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type EntryDetail struct {
	EntryView
	OtherCount int `json:"otherCount"`
}

func entryView(e store.Entry) EntryView {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	groups := e.Groups
	if groups == nil {
		groups = []string{}
	}
	return EntryView{
		ID:         e.ID,
		Type:       e.Type,
		User:       e.Username,
		Title:      e.Title,
		URL:        e.URL,
		URLMD5:     e.URLMD5,
		Comment:    e.Comment,
		Content:    e.Content,
		IsPrivate:  e.IsPrivate,
		Tags:       tags,
		Groups:     groups,
		CreatedAt:  e.CreatedAt,
		ModifiedAt: e.ModifiedAt,
	}
}

func entryViews(entries []store.Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	return views
}

// Scope selects a listing. Empty fields are not applied; set fields
// narrow the listing together.
type Scope struct {
	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Listing is one page of entries. A denied listing carries the reason in
// Message and no entries.
type Listing struct {
	Scope    Scope       `json:"scope"`
	Entries  []EntryView `json:"entries"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Denied   bool        `json:"denied"`
	Message  string      `json:"message,omitempty"`
}

type TagCountView struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TagCloud struct {
	User    string         `json:"user,omitempty"`
	Order   string         `json:"order"`
	Tags    []TagCountView `json:"tags"`
	Denied  bool           `json:"denied"`
	Message string         `json:"message,omitempty"`
}

type SearchResult struct {
	Query    string      `json:"query"`
	Entries  []EntryView `json:"entries"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Backend  string      `json:"backend"`
}

// EntryInput is the body of an entry create or update. Tags is the
// whitespace-separated form; TagList, when set, takes precedence.
type EntryInput struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Content   string   `json:"content"`
	Tags      string   `json:"tags"`
	TagList   []string `json:"tagList"`
	IsPrivate *bool    `json:"isPrivate"`
	Groups    []string `json:"groups"`
	// Confirm saves a url the owner already has an entry for.
	Confirm bool `json:"confirm"`
}

type FilterView struct {
	ID        int64     `json:"id"`
	Attr      string    `json:"attr"`
	Value     string    `json:"value"`
	Exact     bool      `json:"exact"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func filterView(f store.Filter) FilterView {
	return FilterView{ID: f.ID, Attr: f.AttrName, Value: f.Value, Exact: f.IsExact, Active: f.IsActive, CreatedAt: f.CreatedAt}
}

type FilterInput struct {
	Attr   string `json:"attr"`
	Value  string `json:"value"`
	Exact  bool   `json:"exact"`
	Active *bool  `json:"active"`
}

type ProfileView struct {
	Username              string `json:"username"`
	IsPrivate             bool   `json:"isPrivate"`
	DefaultToPrivateEntry bool   `json:"defaultToPrivateEntry"`
}

type ProfileInput struct {
	IsPrivate             *bool `json:"isPrivate"`
	DefaultToPrivateEntry *bool `json:"defaultToPrivateEntry"`
}
