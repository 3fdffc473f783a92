package store

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	IsStaff      bool
	DateJoined   time.Time
}

type UserProfile struct {
	UserID                int64
	IsPrivate             bool
	DefaultToPrivateEntry bool
	URL                   string
	Token                 string
	TZ                    string
	ModifiedAt            time.Time
}

type Group struct {
	ID   int64
	Name string
}

type GroupProfile struct {
	GroupID     int64
	Description string
	IsPrivate   bool
	SToken      string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

type Filter struct {
	ID         int64
	UserID     int64
	AttrName   string
	Value      string
	IsExact    bool
	IsActive   bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

type URL struct {
	ID     int64
	Value  string
	MD5Sum string
}

type Tag struct {
	ID   int64
	Name string
}

const EntryTypeLink = "l"

// Entry is a bookmark joined with the owner and url data listings need.
type Entry struct {
	ID           int64
	Type         string
	UserID       int64
	Username     string
	OwnerActive  bool
	OwnerPrivate bool
	Title        string
	URLID        int64
	URL          string
	URLMD5       string
	Comment      string
	Content      string
	IsPrivate    bool
	Tags         []string
	Groups       []string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// EntryWrite carries the fields of a create or update. Tags must already
// be normalized. A zero CreatedAt means now. SkipOutbox leaves the entry
// out of the index queue, for bulk loads that reindex afterwards.
type EntryWrite struct {
	UserID     int64
	Title      string
	URL        string
	Comment    string
	Content    string
	IsPrivate  bool
	Tags       []string
	GroupIDs   []int64
	CreatedAt  time.Time
	SkipOutbox bool
}

// TagCount is one row of a tag cloud.
type TagCount struct {
	TagID int64
	Name  string
	Count int
}

type OutboxOp string

const (
	OutboxUpsert      OutboxOp = "upsert"
	OutboxDelete      OutboxOp = "delete"
	OutboxReindexUser OutboxOp = "reindex_user"
)

// OutboxItem is a pending index operation written in the same transaction
// as the relational change it mirrors.
type OutboxItem struct {
	ID        int64
	Op        OutboxOp
	EntryID   int64
	UserID    int64
	Attempts  int
	LastError string
	CreatedAt time.Time
}
