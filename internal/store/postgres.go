package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectUser = `
	SELECT id, username, email, password_hash, first_name, last_name, is_active, is_staff, date_joined
	FROM users
`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.IsActive, &user.IsStaff, &user.DateJoined)
	return user, err
}

func (s *PostgresStore) GetUserByName(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE username=$1`, username))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id=$1`, userID))
}

// CreateUser inserts a user together with its profile. A taken username
// returns ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, user User, profile UserProfile) (User, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (username, email, password_hash, first_name, last_name, is_active, is_staff)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, date_joined
		`, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.IsActive, user.IsStaff).
			Scan(&user.ID, &user.DateJoined)
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: %w", user.Username, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, is_private, default_to_private_entry, url, token, tz)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, user.ID, profile.IsPrivate, profile.DefaultToPrivateEntry, profile.URL, profile.Token, profile.TZ)
		if err != nil {
			return fmt.Errorf("insert user profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return expectRow(res)
}

// SetUserActive flips the account flag and queues a reindex of the
// user's documents, which carry the flag.
func (s *PostgresStore) SetUserActive(ctx context.Context, userID int64, active bool) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET is_active=$2 WHERE id=$1`, userID, active)
		if err != nil {
			return fmt.Errorf("set user active: %w", err)
		}
		if err := expectRow(res); err != nil {
			return err
		}
		return enqueue(ctx, tx, OutboxReindexUser, 0, userID)
	})
}

// GetUserProfile returns the profile for userID; users without a profile
// row get the defaults.
func (s *PostgresStore) GetUserProfile(ctx context.Context, userID int64) (UserProfile, error) {
	profile := UserProfile{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT is_private, default_to_private_entry, url, token, tz, modified_at
		FROM user_profiles
		WHERE user_id=$1
	`, userID).Scan(&profile.IsPrivate, &profile.DefaultToPrivateEntry, &profile.URL, &profile.Token, &profile.TZ, &profile.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("get user profile: %w", err)
	}
	return profile, nil
}

// UpdateUserProfile stores the privacy flags. When the account privacy
// flag changes every document of the user is queued for reindexing.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID int64, isPrivate, defaultToPrivate bool) (bool, error) {
	var changed bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var previous sql.NullBool
		err := tx.QueryRowContext(ctx, `SELECT is_private FROM user_profiles WHERE user_id=$1 FOR UPDATE`, userID).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock user profile: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, is_private, default_to_private_entry)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET is_private=EXCLUDED.is_private,
				default_to_private_entry=EXCLUDED.default_to_private_entry,
				modified_at=NOW()
		`, userID, isPrivate, defaultToPrivate)
		if err != nil {
			return fmt.Errorf("update user profile: %w", err)
		}
		changed = previous.Bool != isPrivate
		if !changed {
			return nil
		}
		return enqueue(ctx, tx, OutboxReindexUser, 0, userID)
	})
	return changed, err
}

func (s *PostgresStore) GetGroupByName(ctx context.Context, name string) (Group, error) {
	var group Group
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE name=$1`, name).Scan(&group.ID, &group.Name)
	return group, err
}

// GroupsByName resolves names to groups; unknown names are left out.
func (s *PostgresStore) GroupsByName(ctx context.Context, names []string) ([]Group, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM groups WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, fmt.Errorf("groups by name: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// UserGroups lists the groups userID is a member of.
func (s *PostgresStore) UserGroups(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id=$1
		ORDER BY g.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("user groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

func scanGroups(rows *sql.Rows) ([]Group, error) {
	groups := make([]Group, 0)
	for rows.Next() {
		var group Group
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// GroupProfile returns the profile of groupID, or the defaults when the
// group has none.
func (s *PostgresStore) GroupProfile(ctx context.Context, groupID int64) (GroupProfile, error) {
	profile := GroupProfile{GroupID: groupID}
	err := s.db.QueryRowContext(ctx, `
		SELECT description, is_private, stoken, created_at, modified_at
		FROM group_profiles
		WHERE group_id=$1
	`, groupID).Scan(&profile.Description, &profile.IsPrivate, &profile.SToken, &profile.CreatedAt, &profile.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, nil
	}
	if err != nil {
		return GroupProfile{}, fmt.Errorf("get group profile: %w", err)
	}
	return profile, nil
}

// CreateGroup inserts a group and its profile. A taken name returns
// ErrConflict.
func (s *PostgresStore) CreateGroup(ctx context.Context, name string, profile GroupProfile) (Group, error) {
	group := Group{Name: name}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `INSERT INTO groups (name) VALUES ($1) RETURNING id`, name).Scan(&group.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("insert group %s: %w", name, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_profiles (group_id, description, is_private, stoken)
			VALUES ($1, $2, $3, $4)
		`, group.ID, profile.Description, profile.IsPrivate, profile.SToken)
		if err != nil {
			return fmt.Errorf("insert group profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	return group, nil
}

func (s *PostgresStore) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)
	`, groupID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddGroupInvite(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_invites (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group invite: %w", err)
	}
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
