package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// Fingerprint is the lookup key of a stored url value.
func Fingerprint(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

const selectEntry = `
	SELECT e.id, e.etype, e.user_id, u.username, u.is_active, COALESCE(up.is_private, FALSE),
		e.title, e.url_id, urls.value, urls.md5sum, e.comment, e.content, e.is_private,
		e.created_at, e.modified_at
	FROM entries e
	JOIN users u ON u.id = e.user_id
	LEFT JOIN user_profiles up ON up.user_id = e.user_id
	JOIN urls ON urls.id = e.url_id
`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Type, &e.UserID, &e.Username, &e.OwnerActive, &e.OwnerPrivate,
		&e.Title, &e.URLID, &e.URL, &e.URLMD5, &e.Comment, &e.Content, &e.IsPrivate,
		&e.CreatedAt, &e.ModifiedAt)
	return e, err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// CreateEntry stores a new entry with its url, tags and groups and queues
// it for indexing, all in one transaction.
func (s *PostgresStore) CreateEntry(ctx context.Context, w EntryWrite) (int64, error) {
	var entryID int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		urlID, err := getOrCreateURL(ctx, tx, w.URL)
		if err != nil {
			return err
		}
		var createdAt any
		if !w.CreatedAt.IsZero() {
			createdAt = w.CreatedAt.UTC()
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO entries (etype, user_id, title, url_id, comment, content, is_private, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($8, NOW()))
			RETURNING id
		`, EntryTypeLink, w.UserID, w.Title, urlID, w.Comment, w.Content, w.IsPrivate, createdAt).Scan(&entryID)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if err := attachTags(ctx, tx, entryID, w.Tags); err != nil {
			return err
		}
		if err := attachGroups(ctx, tx, entryID, w.GroupIDs); err != nil {
			return err
		}
		if w.SkipOutbox {
			return nil
		}
		return enqueue(ctx, tx, OutboxUpsert, entryID, w.UserID)
	})
	if err != nil {
		return 0, err
	}
	return entryID, nil
}

// UpdateEntry replaces the editable fields, tags and groups of an entry
// and queues it for reindexing.
func (s *PostgresStore) UpdateEntry(ctx context.Context, entryID int64, w EntryWrite) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		urlID, err := getOrCreateURL(ctx, tx, w.URL)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE entries
			SET title=$2, url_id=$3, comment=$4, content=$5, is_private=$6, modified_at=NOW()
			WHERE id=$1
		`, entryID, w.Title, urlID, w.Comment, w.Content, w.IsPrivate)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if err := expectRow(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id=$1`, entryID); err != nil {
			return fmt.Errorf("clear entry tags: %w", err)
		}
		if err := attachTags(ctx, tx, entryID, w.Tags); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entry_groups WHERE entry_id=$1`, entryID); err != nil {
			return fmt.Errorf("clear entry groups: %w", err)
		}
		if err := attachGroups(ctx, tx, entryID, w.GroupIDs); err != nil {
			return err
		}
		return enqueue(ctx, tx, OutboxUpsert, entryID, w.UserID)
	})
}

// DeleteEntry removes an entry and queues a delete for the index as a
// backstop to the caller's own index delete.
func (s *PostgresStore) DeleteEntry(ctx context.Context, entryID int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var userID int64
		err := tx.QueryRowContext(ctx, `DELETE FROM entries WHERE id=$1 RETURNING user_id`, entryID).Scan(&userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("delete entry: %w", err)
		}
		return enqueue(ctx, tx, OutboxDelete, entryID, userID)
	})
}

func getOrCreateURL(ctx context.Context, q querier, value string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO urls (value, md5sum) VALUES ($1, $2)
		ON CONFLICT (value) DO NOTHING
		RETURNING id
	`, value, Fingerprint(value)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert url: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT id FROM urls WHERE value=$1`, value).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup url: %w", err)
	}
	return id, nil
}

// getOrCreateTag tolerates a concurrent insert of the same name: the
// losing insert does nothing and the row is read back.
func getOrCreateTag(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert tag: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT id FROM tags WHERE name=$1`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup tag: %w", err)
	}
	return id, nil
}

func attachTags(ctx context.Context, q querier, entryID int64, names []string) error {
	for seq, name := range names {
		tagID, err := getOrCreateTag(ctx, q, name)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO entry_tags (entry_id, tag_id, sequence_num) VALUES ($1, $2, $3)
			ON CONFLICT (entry_id, tag_id) DO NOTHING
		`, entryID, tagID, seq)
		if err != nil {
			return fmt.Errorf("attach tag %s: %w", name, err)
		}
	}
	return nil
}

func attachGroups(ctx context.Context, q querier, entryID int64, groupIDs []int64) error {
	for _, groupID := range groupIDs {
		_, err := q.ExecContext(ctx, `
			INSERT INTO entry_groups (entry_id, group_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, entryID, groupID)
		if err != nil {
			return fmt.Errorf("attach group: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetEntry(ctx context.Context, entryID int64) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntry+` WHERE e.id=$1`, entryID))
	if err != nil {
		return Entry{}, err
	}
	entries := []Entry{e}
	if err := hydrate(ctx, s.db, entries); err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// GetEntries loads the given entries in id order; missing ids are left out.
func (s *PostgresStore) GetEntries(ctx context.Context, ids []int64) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, selectEntry+` WHERE e.id = ANY($1) ORDER BY e.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, s.db, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// hydrate fills Tags (in sequence order) and Groups of entries in place.
func hydrate(ctx context.Context, q querier, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]int64, len(entries))
	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
		entries[i].Tags = []string{}
		entries[i].Groups = []string{}
	}

	tagRows, err := q.QueryContext(ctx, `
		SELECT et.entry_id, t.name
		FROM entry_tags et
		JOIN tags t ON t.id = et.tag_id
		WHERE et.entry_id = ANY($1)
		ORDER BY et.entry_id, et.sequence_num
	`, ids)
	if err != nil {
		return fmt.Errorf("load entry tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var entryID int64
		var name string
		if err := tagRows.Scan(&entryID, &name); err != nil {
			return fmt.Errorf("scan entry tag: %w", err)
		}
		i := index[entryID]
		entries[i].Tags = append(entries[i].Tags, name)
	}
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("iterate entry tags: %w", err)
	}

	groupRows, err := q.QueryContext(ctx, `
		SELECT eg.entry_id, g.name
		FROM entry_groups eg
		JOIN groups g ON g.id = eg.group_id
		WHERE eg.entry_id = ANY($1)
		ORDER BY eg.entry_id, g.name
	`, ids)
	if err != nil {
		return fmt.Errorf("load entry groups: %w", err)
	}
	defer groupRows.Close()
	for groupRows.Next() {
		var entryID int64
		var name string
		if err := groupRows.Scan(&entryID, &name); err != nil {
			return fmt.Errorf("scan entry group: %w", err)
		}
		i := index[entryID]
		entries[i].Groups = append(entries[i].Groups, name)
	}
	if err := groupRows.Err(); err != nil {
		return fmt.Errorf("iterate entry groups: %w", err)
	}
	return nil
}

// OwnerEntryIDsByURL lists the entries userID already saved for url.
func (s *PostgresStore) OwnerEntryIDsByURL(ctx context.Context, userID int64, url string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id
		FROM entries e
		JOIN urls ON urls.id = e.url_id
		WHERE e.user_id=$1 AND urls.value=$2
		ORDER BY e.id
	`, userID, url)
	if err != nil {
		return nil, fmt.Errorf("owner entries by url: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// OtherCount counts publicly visible entries, other than entryID, that
// share its url.
func (s *PostgresStore) OtherCount(ctx context.Context, entryID, urlID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM entries e
		JOIN users u ON u.id = e.user_id
		LEFT JOIN user_profiles up ON up.user_id = e.user_id
		WHERE e.url_id=$1 AND e.id<>$2
			AND u.is_active AND NOT e.is_private AND NOT COALESCE(up.is_private, FALSE)
	`, urlID, entryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("other count: %w", err)
	}
	return count, nil
}

// EntrySharedWith reports whether entryID is shared to a group userID
// belongs to.
func (s *PostgresStore) EntrySharedWith(ctx context.Context, entryID, userID int64) (bool, error) {
	var shared bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM entry_groups eg
			JOIN group_members gm ON gm.group_id = eg.group_id
			WHERE eg.entry_id=$1 AND gm.user_id=$2
		)
	`, entryID, userID).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("entry shared with: %w", err)
	}
	return shared, nil
}

// EntryIDsAfter pages through entry ids in ascending order, optionally for
// one user (userID 0 means every user).
func (s *PostgresStore) EntryIDsAfter(ctx context.Context, userID, afterID int64, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM entries
		WHERE id > $1 AND ($2 = 0 OR user_id = $2)
		ORDER BY id
		LIMIT $3
	`, afterID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("entry ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) GetURLByMD5(ctx context.Context, md5sum string) (URL, error) {
	var url URL
	err := s.db.QueryRowContext(ctx, `
		SELECT id, value, md5sum FROM urls WHERE md5sum=$1 ORDER BY id LIMIT 1
	`, md5sum).Scan(&url.ID, &url.Value, &url.MD5Sum)
	return url, err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
