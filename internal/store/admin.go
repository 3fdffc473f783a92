package store

import (
	"context"
	"fmt"
)

// ResetAll empties every application table. Used by the legacy import's
// --reset flag.
func (s *PostgresStore) ResetAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE index_outbox, entry_groups, entry_tags, entries, tags, urls, filters,
			group_invites, group_members, group_profiles, groups, user_profiles, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}
	return nil
}

// FixGroupDates sets each group's created_at to its earliest shared entry.
func (s *PostgresStore) FixGroupDates(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_profiles gp
		SET created_at = first.created_at
		FROM (
			SELECT eg.group_id, MIN(e.created_at) AS created_at
			FROM entry_groups eg
			JOIN entries e ON e.id = eg.entry_id
			GROUP BY eg.group_id
		) first
		WHERE first.group_id = gp.group_id
	`)
	if err != nil {
		return 0, fmt.Errorf("fix group dates: %w", err)
	}
	return res.RowsAffected()
}

// FixUserDateJoined sets each user's date_joined to their earliest entry.
func (s *PostgresStore) FixUserDateJoined(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users u
		SET date_joined = first.created_at
		FROM (
			SELECT user_id, MIN(created_at) AS created_at
			FROM entries
			GROUP BY user_id
		) first
		WHERE first.user_id = u.id
	`)
	if err != nil {
		return 0, fmt.Errorf("fix user date joined: %w", err)
	}
	return res.RowsAffected()
}
