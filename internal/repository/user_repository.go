package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
)

// UserRepo mirrors the 'users' table.
type UserRepo struct{ q DBTX }

func NewUserRepo(q DBTX) *UserRepo { return &UserRepo{q: q} }

const userColumns = `id, email, display_name, password_hash, role, is_active, created_at, updated_at`

func scanUser(sc interface{ Scan(...any) error }, u *model.User) error {
	var role string
	if err := sc.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.Role = model.Role(role)
	return nil
}

// Create inserts u (email normalised) and sets its ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO users (email, display_name, password_hash, role, is_active, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		u.Email, u.DisplayName, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

func (r *UserRepo) get(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	if err := scanUser(r.q.QueryRowContext(ctx, q, arg), &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// List returns all users ordered by display name.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY display_name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetActive enables or disables an account.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool, at time.Time) error {
	res, err := r.q.ExecContext(ctx, "UPDATE users SET is_active=?, updated_at=? WHERE id=?", active, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
