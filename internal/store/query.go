package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dchud/unalog2/internal/filter"
)

// EntryQuery selects a page of entries. Zero-valued scope fields are not
// applied. Gated restricts the result to public entries of public users;
// a non-zero ViewerID widens the gate to the viewer's own entries and
// entries shared to their groups. Text switches to full-text matching
// ordered by rank.
type EntryQuery struct {
	OwnerID  int64
	GroupID  int64
	TagName  string
	URLID    int64
	Text     string
	Gated    bool
	ViewerID int64
	Exclude  []filter.Rule
	Limit    int
	Offset   int
}

// EntryPredicate builds the WHERE clause for q over the aliases used by
// entry selects (e, u, up, urls). Placeholders are numbered from startArg.
func EntryPredicate(q EntryQuery, startArg int) (string, []any) {
	where, args, _ := entryPredicate(q, startArg)
	return where, args
}

// entryPredicate also returns the placeholder bound to q.Text, if any.
func entryPredicate(q EntryQuery, startArg int) (string, []any, string) {
	b := predicateBuilder{next: startArg}
	textRef := ""
	b.add("u.is_active")

	if q.OwnerID != 0 {
		b.add("e.user_id = " + b.arg(q.OwnerID))
	}
	if q.GroupID != 0 {
		b.add("EXISTS (SELECT 1 FROM entry_groups eg WHERE eg.entry_id = e.id AND eg.group_id = " + b.arg(q.GroupID) + ")")
	}
	if q.TagName != "" {
		b.add(`EXISTS (SELECT 1 FROM entry_tags et JOIN tags t ON t.id = et.tag_id
			WHERE et.entry_id = e.id AND t.name = ` + b.arg(q.TagName) + ")")
	}
	if q.URLID != 0 {
		b.add("e.url_id = " + b.arg(q.URLID))
	}
	if strings.TrimSpace(q.Text) != "" {
		textRef = b.arg(q.Text)
		b.add("e.fts @@ plainto_tsquery('english', " + textRef + ")")
	}
	if q.Gated {
		public := "(NOT e.is_private AND NOT COALESCE(up.is_private, FALSE))"
		if q.ViewerID != 0 {
			viewer := b.arg(q.ViewerID)
			public = fmt.Sprintf(`(%s OR e.user_id = %s OR EXISTS (
				SELECT 1 FROM entry_groups eg JOIN group_members gm ON gm.group_id = eg.group_id
				WHERE eg.entry_id = e.id AND gm.user_id = %s))`, public, viewer, viewer)
		}
		b.add(public)
	}
	for _, rule := range q.Exclude {
		if clause := b.exclusion(rule); clause != "" {
			b.add(clause)
		}
	}
	return strings.Join(b.clauses, " AND "), b.args, textRef
}

type predicateBuilder struct {
	clauses []string
	args    []any
	next    int
}

func (b *predicateBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *predicateBuilder) arg(v any) string {
	b.args = append(b.args, v)
	p := fmt.Sprintf("$%d", b.next)
	b.next++
	return p
}

// exclusion renders a rule as a clause that keeps only rows the rule does
// not hide. Substring rules use ILIKE with the value escaped.
func (b *predicateBuilder) exclusion(rule filter.Rule) string {
	if !rule.Active {
		return ""
	}
	op, value := "=", rule.Value
	if !rule.Exact() {
		op, value = "ILIKE", "%"+escapeLike(rule.Value)+"%"
	}
	switch rule.Attr {
	case filter.AttrUser:
		return fmt.Sprintf("NOT (u.username %s %s)", op, b.arg(value))
	case filter.AttrURL:
		return fmt.Sprintf("NOT (urls.value %s %s)", op, b.arg(value))
	case filter.AttrTag:
		return fmt.Sprintf(`NOT EXISTS (SELECT 1 FROM entry_tags xt JOIN tags xn ON xn.id = xt.tag_id
			WHERE xt.entry_id = e.id AND xn.name %s %s)`, op, b.arg(value))
	default:
		return ""
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

const entryFrom = `
	FROM entries e
	JOIN users u ON u.id = e.user_id
	LEFT JOIN user_profiles up ON up.user_id = e.user_id
	JOIN urls ON urls.id = e.url_id
`

// ListEntries returns one page of matching entries, newest first (or by
// rank for text queries), and the total match count.
func (s *PostgresStore) ListEntries(ctx context.Context, q EntryQuery) ([]Entry, int, error) {
	where, args, textRef := entryPredicate(q, 1)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+entryFrom+" WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	if total == 0 {
		return []Entry{}, 0, nil
	}

	order := "e.created_at DESC, e.id DESC"
	if textRef != "" {
		order = "ts_rank(e.fts, plainto_tsquery('english', " + textRef + ")) DESC, " + order
	}
	limit, offset := pageBounds(q.Limit, q.Offset)
	query := fmt.Sprintf("%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d", selectEntry, where, order, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := hydrate(ctx, s.db, entries); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type TagOrder string

const (
	TagOrderFreq   TagOrder = "freq"
	TagOrderAlpha  TagOrder = "alpha"
	TagOrderRecent TagOrder = "recent"
)

// TagCountQuery selects a tag cloud under the same gate as listings.
type TagCountQuery struct {
	OwnerID int64
	Gated   bool
	Exclude []filter.Rule
	Order   TagOrder
	Limit   int
	Offset  int
}

// TagCounts counts entries per tag among the entries q selects.
func (s *PostgresStore) TagCounts(ctx context.Context, q TagCountQuery) ([]TagCount, error) {
	where, args := EntryPredicate(EntryQuery{OwnerID: q.OwnerID, Gated: q.Gated, Exclude: q.Exclude}, 1)

	var order string
	switch q.Order {
	case TagOrderAlpha:
		order = "t.name ASC"
	case TagOrderRecent:
		order = "MAX(e.created_at) DESC, t.name ASC"
	default:
		order = "COUNT(*) DESC, t.name ASC"
	}
	limit, offset := pageBounds(q.Limit, q.Offset)
	query := fmt.Sprintf(`
		SELECT t.id, t.name, COUNT(*)
		%s
		JOIN entry_tags et ON et.entry_id = e.id
		JOIN tags t ON t.id = et.tag_id
		WHERE %s
		GROUP BY t.id, t.name
		ORDER BY %s
		LIMIT %d OFFSET %d
	`, entryFrom, where, order, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tag counts: %w", err)
	}
	defer rows.Close()

	counts := make([]TagCount, 0)
	for rows.Next() {
		var c TagCount
		if err := rows.Scan(&c.TagID, &c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag counts: %w", err)
	}
	return counts, nil
}
