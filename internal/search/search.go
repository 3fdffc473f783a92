// Package search mirrors entries into a full-text index and answers
// search queries against it, falling back to PostgreSQL full-text search.
package search

import (
	"time"

	"github.com/dchud/unalog2/internal/filter"
	"github.com/dchud/unalog2/internal/store"
	"github.com/dchud/unalog2/internal/visibility"
)

const (
	MaxCommentLength = 2000
	MaxContentLength = 50000

	// DateLayout is the wire format of date_created.
	DateLayout = "2006-01-02T15:04:05Z"
)

// Document is the indexed form of an entry.
type Document struct {
	ID             int64    `json:"id"`
	User           string   `json:"user"`
	UserID         int64    `json:"user_id"`
	IsPrivateEntry bool     `json:"is_private_entry"`
	IsPrivateUser  bool     `json:"is_private_user"`
	IsActiveUser   bool     `json:"is_active_user"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Comment        string   `json:"comment"`
	Content        string   `json:"content"`
	DateCreated    string   `json:"date_created"`
	Tag            []string `json:"tag"`
	Group          []string `json:"group"`
}

// NewDocument builds the index document for e. Long comment and content
// values are cut to bound document size.
func NewDocument(e store.Entry) Document {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	groups := e.Groups
	if groups == nil {
		groups = []string{}
	}
	return Document{
		ID:             e.ID,
		User:           e.Username,
		UserID:         e.UserID,
		IsPrivateEntry: e.IsPrivate,
		IsPrivateUser:  e.OwnerPrivate,
		IsActiveUser:   e.OwnerActive,
		Title:          e.Title,
		URL:            e.URL,
		Comment:        truncate(e.Comment, MaxCommentLength),
		Content:        truncate(e.Content, MaxContentLength),
		DateCreated:    FormatDate(e.CreatedAt),
		Tag:            tags,
		Group:          groups,
	}
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Indexer writes documents to the search index. Writes may be applied
// asynchronously by the backend; Commit blocks until they are visible.
type Indexer interface {
	Upsert(docs []Document) error
	Delete(ids []int64) error
	DeleteByUser(userID int64) error
	DeleteAll() error
	Commit() error
	Healthy() bool
}

// Query is a search request on behalf of a viewer.
type Query struct {
	Text   string
	Viewer visibility.Viewer
	// ViewerGroups names the groups the viewer belongs to.
	ViewerGroups []string
	Exclude      []filter.Rule
	Limit        int
	Offset       int
}

// Searcher returns the ids of matching entries in rank order.
type Searcher interface {
	Search(q Query) ([]int64, int, error)
	Healthy() bool
}
