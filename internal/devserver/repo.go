package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	errUserExists   = errors.New("user already registered")
	errUserNotFound = errors.New("user not found")
)

type user struct {
	ID                string
	Email             string
	PasswordHash      string
	ConfirmationToken string
	ConfirmedAt       time.Time
	CreatedAt         time.Time
}

type item struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	EncryptedData string    `json:"encrypted_data"`
	CreatedAt     time.Time `json:"created_at"`
}

// repo holds every query the handlers run.
type repo struct {
	db *DB
}

func (r *repo) createUser(ctx context.Context, u *user) error {
	const query = `INSERT INTO users (id, email, password_hash, confirmation_token, confirmed_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash,
		nullString(u.ConfirmationToken), nullTime(u.ConfirmedAt), formatTime(u.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errUserExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *repo) userByEmail(ctx context.Context, email string) (*user, error) {
	const query = `SELECT id, email, password_hash, confirmation_token, confirmed_at, created_at FROM users WHERE email = ?`
	return r.scanUser(r.db.Reader.QueryRowContext(ctx, query, email))
}

func (r *repo) userByID(ctx context.Context, id string) (*user, error) {
	const query = `SELECT id, email, password_hash, confirmation_token, confirmed_at, created_at FROM users WHERE id = ?`
	return r.scanUser(r.db.Reader.QueryRowContext(ctx, query, id))
}

func (r *repo) scanUser(row *sql.Row) (*user, error) {
	var (
		u                user
		token, confirmed sql.NullString
		created          string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &token, &confirmed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ConfirmationToken = token.String
	u.ConfirmedAt = parseTime(confirmed.String)
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// confirmUser marks the account confirmed if token matches the pending one.
func (r *repo) confirmUser(ctx context.Context, email, token string, now time.Time) (*user, error) {
	const query = `UPDATE users SET confirmed_at = ?, confirmation_token = NULL WHERE email = ? AND confirmation_token = ? AND confirmed_at IS NULL`
	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(now), email, token)
	if err != nil {
		return nil, fmt.Errorf("confirm user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errUserNotFound
	}
	return r.userByEmail(ctx, email)
}

func (r *repo) createSession(ctx context.Context, userID string, expires time.Time) (string, error) {
	id := uuid.NewString()
	const query = `INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, id, userID, formatTime(expires)); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (r *repo) sessionActive(ctx context.Context, id string) (bool, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE id = ?`
	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (r *repo) deleteSession(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *repo) listItems(ctx context.Context, userID string, desc bool) ([]item, error) {
	query := `SELECT id, user_id, title, encrypted_data, created_at FROM vault_items WHERE user_id = ? ORDER BY created_at ASC, rowid ASC`
	if desc {
		query = `SELECT id, user_id, title, encrypted_data, created_at FROM vault_items WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []item{}
	for rows.Next() {
		var (
			it      item
			created string
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.Title, &it.EncryptedData, &created); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.CreatedAt = parseTime(created)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repo) insertItem(ctx context.Context, it *item) error {
	const query = `INSERT INTO vault_items (id, user_id, title, encrypted_data, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query, it.ID, it.UserID, it.Title, it.EncryptedData, formatTime(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// deleteItem removes the item owned by userID and returns it, or nil if
// no such item exists.
func (r *repo) deleteItem(ctx context.Context, userID, id string) (*item, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var (
		it      item
		created string
	)
	const selectQuery = `SELECT id, user_id, title, encrypted_data, created_at FROM vault_items WHERE id = ? AND user_id = ?`
	err = tx.QueryRowContext(ctx, selectQuery, id, userID).Scan(&it.ID, &it.UserID, &it.Title, &it.EncryptedData, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	it.CreatedAt = parseTime(created)

	if _, err := tx.ExecContext(ctx, `DELETE FROM vault_items WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return &it, nil
}

// timeLayout has fixed-width fractions so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
