package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/range-booking/internal/model"
)

// ClosureRepo provides data access to the closures table.
type ClosureRepo struct {
	q DBTX
}

// NewClosureRepo constructs a ClosureRepo over q.
func NewClosureRepo(q DBTX) *ClosureRepo { return &ClosureRepo{q: q} }

const closureColumns = `id, starts_at, ends_at, reason, category, created_at`

func scanClosure(sc interface{ Scan(...any) error }, c *model.Closure) error {
	var category string
	if err := sc.Scan(&c.ID, &c.StartsAt, &c.EndsAt, &c.Reason, &category, &c.CreatedAt); err != nil {
		return err
	}
	c.Category = model.ClosureCategory(category)
	return nil
}

// ListOverlapping returns closures intersecting window ordered by start.
func (r *ClosureRepo) ListOverlapping(ctx context.Context, window model.Interval) ([]model.Closure, error) {
	const q = `SELECT ` + closureColumns + ` FROM closures WHERE starts_at < ? AND ends_at > ? ORDER BY starts_at, id`
	rows, err := r.q.QueryContext(ctx, q, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Closure, 0)
	for rows.Next() {
		var c model.Closure
		if err := scanClosure(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID returns ErrNotFound when no closure has the id.
func (r *ClosureRepo) GetByID(ctx context.Context, id uint64) (*model.Closure, error) {
	var c model.Closure
	err := scanClosure(r.q.QueryRowContext(ctx, `SELECT `+closureColumns+` FROM closures WHERE id = ?`, id), &c)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts c and populates its ID.
func (r *ClosureRepo) Create(ctx context.Context, c *model.Closure) error {
	const q = `INSERT INTO closures (starts_at, ends_at, reason, category, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, q, c.StartsAt, c.EndsAt, c.Reason, string(c.Category), c.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// Update rewrites the interval, reason and category of c.ID.
func (r *ClosureRepo) Update(ctx context.Context, c *model.Closure) error {
	const q = `UPDATE closures SET starts_at = ?, ends_at = ?, reason = ?, category = ? WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, c.StartsAt, c.EndsAt, c.Reason, string(c.Category), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged rows report zero as well
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a closure; ErrNotFound when absent.
func (r *ClosureRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM closures WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AnyOverlapping reports whether a closure other than excludeID intersects window.
func (r *ClosureRepo) AnyOverlapping(ctx context.Context, window model.Interval, excludeID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM closures WHERE starts_at < ? AND ends_at > ? AND id <> ?)`
	var exists bool
	if err := r.q.QueryRowContext(ctx, q, window.End, window.Start, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
