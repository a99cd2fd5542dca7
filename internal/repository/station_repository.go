package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
)

// StationRepo provides data access to the stations table.  Names are
// unique under a binary collation so uniqueness is case-sensitive.
type StationRepo struct {
	q DBTX
}

// NewStationRepo constructs a StationRepo over q.
func NewStationRepo(q DBTX) *StationRepo { return &StationRepo{q: q} }

const stationColumns = `id, name, display_order, is_active, created_at, updated_at`

func scanStation(sc interface{ Scan(...any) error }, s *model.Station) error {
	return sc.Scan(&s.ID, &s.Name, &s.DisplayOrder, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
}

func (r *StationRepo) list(ctx context.Context, q string, args ...any) ([]model.Station, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Station, 0)
	for rows.Next() {
		var s model.Station
		if err := scanStation(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActive returns active stations by display order.
func (r *StationRepo) ListActive(ctx context.Context) ([]model.Station, error) {
	return r.list(ctx, `SELECT `+stationColumns+` FROM stations WHERE is_active = 1 ORDER BY display_order, id`)
}

// ListAll returns every station, active or not, by display order.
func (r *StationRepo) ListAll(ctx context.Context) ([]model.Station, error) {
	return r.list(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY display_order, id`)
}

// GetByID returns ErrNotFound when no station has the id.
func (r *StationRepo) GetByID(ctx context.Context, id uint64) (*model.Station, error) {
	var s model.Station
	err := scanStation(r.q.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = ?`, id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LockByIDs selects the stations FOR UPDATE so a concurrent deactivation or
// booking on the same stations waits for the caller's transaction.
func (r *StationRepo) LockByIDs(ctx context.Context, ids []uint64) ([]model.Station, error) {
	if len(ids) == 0 {
		return []model.Station{}, nil
	}
	marks, args := placeholders(ids)
	return r.list(ctx, `SELECT `+stationColumns+` FROM stations WHERE id IN (`+marks+`) ORDER BY display_order, id FOR UPDATE`, args...)
}

// Create inserts s and populates its ID.  Returns ErrDuplicate when the
// name is taken.
func (r *StationRepo) Create(ctx context.Context, s *model.Station) error {
	const q = `INSERT INTO stations (name, display_order, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, q, s.Name, s.DisplayOrder, s.IsActive, s.CreatedAt, s.UpdatedAt)
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
	s.ID = uint64(id)
	return nil
}

// Rename changes a station's name.  The unique key excludes nothing, but a
// row keeping its own name never collides with itself.
func (r *StationRepo) Rename(ctx context.Context, id uint64, name string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE stations SET name = ?, updated_at = ? WHERE id = ?`, name, at, id)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return r.mustExist(ctx, res, id)
}

// SetActive flips the soft-delete flag.
func (r *StationRepo) SetActive(ctx context.Context, id uint64, active bool, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE stations SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	if err != nil {
		return err
	}
	return r.mustExist(ctx, res, id)
}

// SetOrder assigns a display order value.
func (r *StationRepo) SetOrder(ctx context.Context, id uint64, order int, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE stations SET display_order = ?, updated_at = ? WHERE id = ?`, order, at, id)
	if err != nil {
		return err
	}
	return r.mustExist(ctx, res, id)
}

// NextOrder returns one past the highest display order in use.
func (r *StationRepo) NextOrder(ctx context.Context) (int, error) {
	var top sql.NullInt64
	if err := r.q.QueryRowContext(ctx, `SELECT MAX(display_order) FROM stations`).Scan(&top); err != nil {
		return 0, err
	}
	if !top.Valid {
		return 1, nil
	}
	return int(top.Int64) + 1, nil
}

// mustExist turns a zero-row UPDATE into ErrNotFound.  MySQL reports zero
// affected rows when the new values equal the old ones, so a follow-up
// existence check separates "unchanged" from "missing".
func (r *StationRepo) mustExist(ctx context.Context, res sql.Result, id uint64) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err := r.GetByID(ctx, id)
	return err
}
