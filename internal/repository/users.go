// Package repository persists profiles, predictions and feedback through
// database/sql for every supported dialect.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"detectorgo/internal/models"
	"detectorgo/internal/storage"
)

var ErrNotFound = errors.New("record not found")

type UserRepository struct {
	db *storage.DB
}

func NewUserRepository(db *storage.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u        models.User
		username sql.NullString
		role     string
		updated  sql.NullTime
	)
	if err := row.Scan(&u.ID, &username, &u.Email, &role, &u.CreatedAt, &updated); err != nil {
		return models.User{}, err
	}
	if username.Valid {
		u.Username = &username.String
	}
	if updated.Valid {
		u.UpdatedAt = &updated.Time
	}
	u.Role = models.NormalizeRole(role)
	return u, nil
}

// GetByID returns the profile or nil when none exists.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(
		`SELECT `+userColumns+` FROM app_users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// Create inserts a new profile.
func (r *UserRepository) Create(ctx context.Context, u models.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(
		`INSERT INTO app_users (id, username, email, role, created_at) VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts the profile unless a row with the same id exists.
// Concurrent callers converge on a single row.
func (r *UserRepository) CreateIfAbsent(ctx context.Context, u models.User) error {
	query := r.db.Dialect.InsertIgnore("app_users", "id", "id", "username", "email", "role", "created_at")
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, string(u.Role), u.CreatedAt); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UsernameExists reports whether another profile already uses username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(
		`SELECT COUNT(*) FROM app_users WHERE username = ?`), username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup username: %w", err)
	}
	return n > 0, nil
}

// List returns all profiles, newest first.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM app_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetRoleByEmail changes the role of the profile registered with email.
func (r *UserRepository) SetRoleByEmail(ctx context.Context, email string, role models.Role) error {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(
		`UPDATE app_users SET role = ?, updated_at = ? WHERE LOWER(email) = ?`),
		string(role), time.Now().UTC(), strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
