package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
)

// ReservationRepo provides CRUD operations for reservations and their
// station links, participants and comment log.  Child rows reference the
// reservation with ON DELETE CASCADE, so deleting the reservation row
// removes the whole aggregate.  All timestamps are stored in UTC.
type ReservationRepo struct {
	q DBTX
}

// NewReservationRepo returns a new ReservationRepo bound to q.
func NewReservationRepo(q DBTX) *ReservationRepo { return &ReservationRepo{q: q} }

const reservationColumns = `r.id, r.starts_at, r.ends_at, r.status, r.created_by, r.created_at, r.updated_at`

// GetByID loads one reservation with its full graph.  Returns ErrNotFound
// when no reservation has the id.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	list, err := r.query(ctx, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// GetForUpdate takes a row lock on the reservation before loading it.
// Writers to the same reservation queue behind the lock, and the reads that
// follow see their committed rows.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error) {
	var locked uint64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = ? FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// LockInRange locks the reservations intersecting window.
func (r *ReservationRepo) LockInRange(ctx context.Context, window model.Interval) ([]uint64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM reservations
		WHERE starts_at < ? AND ends_at > ?
		ORDER BY id FOR UPDATE`, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListInRange returns reservations intersecting window ordered by start.
func (r *ReservationRepo) ListInRange(ctx context.Context, window model.Interval) ([]model.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations r
		WHERE r.starts_at < ? AND r.ends_at > ?
		ORDER BY r.starts_at, r.id`, window.End, window.Start)
}

// ListByPerson returns reservations the person participates in that end
// after from, soonest first.
func (r *ReservationRepo) ListByPerson(ctx context.Context, personID uint64, from time.Time) ([]model.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations r
		JOIN reservation_participants p ON p.reservation_id = r.id
		WHERE p.person_id = ? AND r.ends_at > ?
		ORDER BY r.starts_at, r.id`, personID, from)
}

// ListPendingOverlapping returns PENDING reservations other than excludeID
// that intersect window.  Used to find merge candidates.
func (r *ReservationRepo) ListPendingOverlapping(ctx context.Context, window model.Interval, excludeID uint64) ([]model.Reservation, error) {
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations r
		WHERE r.status = ? AND r.starts_at < ? AND r.ends_at > ? AND r.id <> ?
		ORDER BY r.starts_at, r.id`, string(model.StatusPending), window.End, window.Start, excludeID)
}

// query runs a reservation SELECT and hydrates every row.
func (r *ReservationRepo) query(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		var status string
		if err := rows.Scan(&res.ID, &res.StartsAt, &res.EndsAt, &status, &res.CreatedBy, &res.CreatedAt, &res.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res.Status = model.Status(status)
		res.Stations = []model.Station{}
		res.Participants = []model.Participant{}
		res.Comments = []model.CommentEntry{}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before issuing the child queries; a transaction connection
	// cannot run a new statement while rows are still open.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// hydrate loads stations, participants and comments for all reservations
// in three queries, one per child table.
func (r *ReservationRepo) hydrate(ctx context.Context, list []model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(list))
	ids := make([]uint64, 0, len(list))
	for i, res := range list {
		index[res.ID] = i
		ids = append(ids, res.ID)
	}
	marks, args := placeholders(ids)

	srows, err := r.q.QueryContext(ctx, `SELECT rs.reservation_id, `+prefixed("s", stationColumns)+`
		FROM reservation_stations rs
		JOIN stations s ON s.id = rs.station_id
		WHERE rs.reservation_id IN (`+marks+`)
		ORDER BY rs.reservation_id, s.display_order, s.id`, args...)
	if err != nil {
		return err
	}
	for srows.Next() {
		var rid uint64
		var s model.Station
		if err := srows.Scan(&rid, &s.ID, &s.Name, &s.DisplayOrder, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			srows.Close()
			return err
		}
		if i, ok := index[rid]; ok {
			list[i].Stations = append(list[i].Stations, s)
		}
	}
	if err := closeRows(srows); err != nil {
		return err
	}

	prows, err := r.q.QueryContext(ctx, `SELECT p.reservation_id, p.person_id, COALESCE(u.display_name, ''), p.joined_at, p.is_instructor
		FROM reservation_participants p
		LEFT JOIN users u ON u.id = p.person_id
		WHERE p.reservation_id IN (`+marks+`)
		ORDER BY p.reservation_id, p.joined_at, p.person_id`, args...)
	if err != nil {
		return err
	}
	for prows.Next() {
		var rid uint64
		var p model.Participant
		if err := prows.Scan(&rid, &p.PersonID, &p.DisplayName, &p.JoinedAt, &p.IsInstructor); err != nil {
			prows.Close()
			return err
		}
		if i, ok := index[rid]; ok {
			list[i].Participants = append(list[i].Participants, p)
		}
	}
	if err := closeRows(prows); err != nil {
		return err
	}

	crows, err := r.q.QueryContext(ctx, `SELECT reservation_id, id, author_id, body, created_at
		FROM reservation_comments
		WHERE reservation_id IN (`+marks+`)
		ORDER BY reservation_id, created_at, id`, args...)
	if err != nil {
		return err
	}
	for crows.Next() {
		var rid uint64
		var c model.CommentEntry
		if err := crows.Scan(&rid, &c.ID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			crows.Close()
			return err
		}
		if i, ok := index[rid]; ok {
			list[i].Comments = append(list[i].Comments, c)
		}
	}
	return closeRows(crows)
}

// Insert writes the reservation row and all of its child rows.  It sets
// res.ID and the comment IDs.  The caller supplies the transaction.
func (r *ReservationRepo) Insert(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (starts_at, ends_at, status, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.q.ExecContext(ctx, q, res.StartsAt, res.EndsAt, string(res.Status), res.CreatedBy, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	if err := r.ReplaceStations(ctx, res.ID, res.StationIDs()); err != nil {
		return err
	}
	if err := r.insertParticipants(ctx, res.ID, res.Participants); err != nil {
		return err
	}
	for i := range res.Comments {
		if err := r.AppendComment(ctx, res.ID, &res.Comments[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReservationRepo) insertParticipants(ctx context.Context, reservationID uint64, ps []model.Participant) error {
	if len(ps) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_participants (reservation_id, person_id, joined_at, is_instructor) VALUES `
	args := make([]any, 0, len(ps)*4)
	for i, p := range ps {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, reservationID, p.PersonID, p.JoinedAt, p.IsInstructor)
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateStatus stores the recomputed status projection.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, status model.Status, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, string(status), at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := r.q.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, id).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
	}
	return nil
}

// Delete removes the reservation; cascades remove the child rows.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant inserts one participant row.  ErrDuplicate when the
// person is already on the reservation.
func (r *ReservationRepo) AddParticipant(ctx context.Context, reservationID uint64, p model.Participant) error {
	return r.insertParticipants(ctx, reservationID, []model.Participant{p})
}

// RemoveParticipant deletes one participant row; ErrNotFound when absent.
func (r *ReservationRepo) RemoveParticipant(ctx context.Context, reservationID, personID uint64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reservation_participants WHERE reservation_id = ? AND person_id = ?`, reservationID, personID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceStations deletes every station link and inserts stationIDs.
func (r *ReservationRepo) ReplaceStations(ctx context.Context, reservationID uint64, stationIDs []uint64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM reservation_stations WHERE reservation_id = ?`, reservationID); err != nil {
		return err
	}
	if len(stationIDs) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_stations (reservation_id, station_id) VALUES `
	args := make([]any, 0, len(stationIDs)*2)
	for i, sid := range stationIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, reservationID, sid)
	}
	_, err := r.q.ExecContext(ctx, query, args...)
	return err
}

// AppendComment inserts a comment log entry and sets c.ID.
func (r *ReservationRepo) AppendComment(ctx context.Context, reservationID uint64, c *model.CommentEntry) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO reservation_comments (reservation_id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		reservationID, c.AuthorID, c.Body, c.CreatedAt)
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

// StationConflict reports whether one of stationIDs is linked to another
// reservation whose interval intersects window.
func (r *ReservationRepo) StationConflict(ctx context.Context, stationIDs []uint64, window model.Interval, excludeID uint64) (bool, error) {
	if len(stationIDs) == 0 {
		return false, nil
	}
	marks, args := placeholders(stationIDs)
	args = append(args, window.End, window.Start, excludeID)
	q := `SELECT EXISTS(SELECT 1 FROM reservation_stations rs
		JOIN reservations r ON r.id = rs.reservation_id
		WHERE rs.station_id IN (` + marks + `) AND r.starts_at < ? AND r.ends_at > ? AND r.id <> ?)`
	var exists bool
	if err := r.q.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AffectedByWindow lists every participant of a reservation intersecting window.
func (r *ReservationRepo) AffectedByWindow(ctx context.Context, window model.Interval) ([]model.Affected, error) {
	return r.affected(ctx, `SELECT p.person_id, r.id, r.starts_at, r.ends_at
		FROM reservation_participants p
		JOIN reservations r ON r.id = p.reservation_id
		WHERE r.starts_at < ? AND r.ends_at > ?
		ORDER BY r.starts_at, r.id, p.joined_at`, window.End, window.Start)
}

// AffectedByStation lists every participant of a reservation on stationID
// that has not ended by from.
func (r *ReservationRepo) AffectedByStation(ctx context.Context, stationID uint64, from time.Time) ([]model.Affected, error) {
	return r.affected(ctx, `SELECT p.person_id, r.id, r.starts_at, r.ends_at
		FROM reservation_participants p
		JOIN reservations r ON r.id = p.reservation_id
		JOIN reservation_stations rs ON rs.reservation_id = r.id
		WHERE rs.station_id = ? AND r.ends_at > ?
		ORDER BY r.starts_at, r.id, p.joined_at`, stationID, from)
}

func (r *ReservationRepo) affected(ctx context.Context, q string, args ...any) ([]model.Affected, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Affected, 0)
	for rows.Next() {
		var a model.Affected
		if err := rows.Scan(&a.PersonID, &a.ReservationID, &a.Window.Start, &a.Window.End); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
