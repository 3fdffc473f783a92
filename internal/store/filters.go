package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListFilters(ctx context.Context, userID int64) ([]Filter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, attr_name, value, is_exact, is_active, created_at, modified_at
		FROM filters
		WHERE user_id=$1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()

	items := make([]Filter, 0)
	for rows.Next() {
		var f Filter
		if err := rows.Scan(&f.ID, &f.UserID, &f.AttrName, &f.Value, &f.IsExact, &f.IsActive, &f.CreatedAt, &f.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filters: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFilter(ctx context.Context, filterID int64) (Filter, error) {
	var f Filter
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, attr_name, value, is_exact, is_active, created_at, modified_at
		FROM filters WHERE id=$1
	`, filterID).Scan(&f.ID, &f.UserID, &f.AttrName, &f.Value, &f.IsExact, &f.IsActive, &f.CreatedAt, &f.ModifiedAt)
	return f, err
}

func (s *PostgresStore) CreateFilter(ctx context.Context, f Filter) (Filter, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO filters (user_id, attr_name, value, is_exact, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, modified_at
	`, f.UserID, f.AttrName, f.Value, f.IsExact, f.IsActive).Scan(&f.ID, &f.CreatedAt, &f.ModifiedAt)
	if err != nil {
		return Filter{}, fmt.Errorf("insert filter: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) UpdateFilter(ctx context.Context, f Filter) (Filter, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE filters
		SET attr_name=$2, value=$3, is_exact=$4, is_active=$5, modified_at=NOW()
		WHERE id=$1
		RETURNING user_id, created_at, modified_at
	`, f.ID, f.AttrName, f.Value, f.IsExact, f.IsActive).Scan(&f.UserID, &f.CreatedAt, &f.ModifiedAt)
	if err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (s *PostgresStore) DeleteFilter(ctx context.Context, filterID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM filters WHERE id=$1`, filterID)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	return expectRow(res)
}
