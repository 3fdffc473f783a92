package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// claimTimeout is how long a claimed row stays invisible to other relays
// before it is considered abandoned.
const claimTimeout = 5 * time.Minute

func enqueue(ctx context.Context, q querier, op OutboxOp, entryID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO index_outbox (op, entry_id, user_id) VALUES ($1, $2, $3)
	`, string(op), nullID(entryID), nullID(userID))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", op, err)
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// EnqueueReindexUser queues a full resubmit of one user's documents.
func (s *PostgresStore) EnqueueReindexUser(ctx context.Context, userID int64) error {
	return enqueue(ctx, s.db, OutboxReindexUser, 0, userID)
}

// ClaimOutbox marks up to limit pending rows as claimed and returns them
// in insertion order. Rows claimed by another worker are skipped.
func (s *PostgresStore) ClaimOutbox(ctx context.Context, limit int) ([]OutboxItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE index_outbox o
		SET claimed_at = NOW()
		WHERE o.id IN (
			SELECT id FROM index_outbox
			WHERE processed_at IS NULL
				AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING o.id, o.op, COALESCE(o.entry_id, 0), COALESCE(o.user_id, 0), o.attempts, o.last_error, o.created_at
	`, limit, claimTimeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	items := make([]OutboxItem, 0)
	for rows.Next() {
		var item OutboxItem
		var op string
		if err := rows.Scan(&item.ID, &op, &item.EntryID, &item.UserID, &item.Attempts, &item.LastError, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox item: %w", err)
		}
		item.Op = OutboxOp(op)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	// UPDATE ... RETURNING gives no ordering guarantee.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *PostgresStore) CompleteOutbox(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE index_outbox SET processed_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("complete outbox: %w", err)
	}
	return nil
}

// FailOutbox records a failed attempt and releases the claim. Once
// maxAttempts is reached the row is closed with its last error.
func (s *PostgresStore) FailOutbox(ctx context.Context, id int64, message string, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_outbox
		SET attempts = attempts + 1,
			last_error = $2,
			claimed_at = NULL,
			processed_at = CASE WHEN attempts + 1 >= $3 THEN NOW() ELSE NULL END
		WHERE id=$1
	`, id, message, maxAttempts)
	if err != nil {
		return fmt.Errorf("fail outbox: %w", err)
	}
	return nil
}

func (s *PostgresStore) PendingOutboxCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_outbox WHERE processed_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending outbox count: %w", err)
	}
	return count, nil
}
