package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
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

const userColumns = `id, display_name, email, password_hash, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified,
		&user.VerificationToken, &user.VerificationExpiresAt, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, NULLIF($6, ''))
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if isUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	if err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

const profileColumns = `id::text, user_id, slug, display_name, bio, avatar_url, theme, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Slug, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.Theme, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProfileByUser(ctx context.Context, userID string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID))
}

func (s *PostgresStore) GetProfileBySlug(ctx context.Context, slug string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE slug=$1`, slug))
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE slug=$1)`, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile Profile) (Profile, error) {
	created, err := scanProfile(s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, slug, display_name, bio, avatar_url, theme)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+profileColumns,
		profile.UserID, profile.Slug, profile.DisplayName, profile.Bio, profile.AvatarURL, profile.Theme,
	))
	switch {
	case isUniqueViolation(err, "profiles_user_id_key"):
		return Profile{}, ErrProfileExists
	case isUniqueViolation(err, "profiles_slug_key"):
		return Profile{}, ErrSlugTaken
	case err != nil:
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET display_name=$2, bio=$3, avatar_url=$4, theme=$5, updated_at=NOW()
		WHERE user_id=$1
		RETURNING `+profileColumns,
		userID, update.DisplayName, update.Bio, update.AvatarURL, update.Theme,
	))
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

const itemColumns = `id::text, profile_id::text, kind, title, url, position, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.ProfileID, &item.Kind, &item.Title, &item.URL, &item.Position, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListItems(ctx context.Context, profileID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM link_items
		WHERE profile_id=$1
		ORDER BY position ASC, created_at ASC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateItem appends the item after the profile's current last position. The
// profile row is locked so concurrent creates do not share a position.
func (s *PostgresStore) CreateItem(ctx context.Context, item Item) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin create item tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM profiles WHERE id=$1 FOR UPDATE`, item.ProfileID); err != nil {
		return Item{}, fmt.Errorf("lock profile: %w", err)
	}

	created, err := scanItem(tx.QueryRowContext(ctx, `
		INSERT INTO link_items (profile_id, kind, title, url, position)
		SELECT $1::uuid, $2, $3, $4, COALESCE(MAX(position) + 1, 0)
		FROM link_items WHERE profile_id=$1::uuid
		RETURNING `+itemColumns,
		item.ProfileID, item.Kind, item.Title, item.URL,
	))
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit create item: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, profileID, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM link_items WHERE id=$1 AND profile_id=$2`, itemID, profileID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// RepositionItems applies every placement whose item belongs to profileID and
// returns how many rows changed. Placements for other ids are skipped.
func (s *PostgresStore) RepositionItems(ctx context.Context, profileID string, placements []Placement) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reposition tx: %w", err)
	}
	defer tx.Rollback()

	updated := 0
	for _, placement := range placements {
		result, err := tx.ExecContext(ctx, `
			UPDATE link_items SET position=$1, updated_at=NOW()
			WHERE id=$2 AND profile_id=$3
		`, placement.Position, placement.ID, profileID)
		if err != nil {
			return 0, fmt.Errorf("reposition item %s: %w", placement.ID, err)
		}
		affected, _ := result.RowsAffected()
		updated += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reposition: %w", err)
	}
	return updated, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
