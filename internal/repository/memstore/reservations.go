package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
)

type reservationView struct{ view }

// hydrate builds the read model of a stored reservation the same way the
// MySQL repository does: stations by display order, participants by join
// time, comments by creation time.
func hydrate(st *state, row *reservationRow) model.Reservation {
	res := row.header
	res.Stations = make([]model.Station, 0, len(row.stationIDs))
	for _, id := range row.stationIDs {
		if s, ok := st.stations[id]; ok {
			res.Stations = append(res.Stations, s)
		}
	}
	sortStations(res.Stations)

	res.Participants = make([]model.Participant, 0, len(row.participants))
	for _, p := range row.participants {
		if u, ok := st.users[p.PersonID]; ok {
			p.DisplayName = u.DisplayName
		} else {
			p.DisplayName = ""
		}
		res.Participants = append(res.Participants, p)
	}
	sort.SliceStable(res.Participants, func(i, j int) bool {
		a, b := res.Participants[i], res.Participants[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.PersonID < b.PersonID
	})

	res.Comments = append([]model.CommentEntry{}, row.comments...)
	sort.SliceStable(res.Comments, func(i, j int) bool {
		a, b := res.Comments[i], res.Comments[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return res
}

// collect hydrates every row accepted by keep, ordered by start then id.
func collect(st *state, keep func(row *reservationRow) bool) []model.Reservation {
	out := make([]model.Reservation, 0)
	for _, row := range st.reservations {
		if keep(row) {
			out = append(out, hydrate(st, row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v reservationView) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	st, done := v.begin()
	defer done()
	row, ok := st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	res := hydrate(st, row)
	return &res, nil
}

// GetForUpdate is GetByID: transactions already run one at a time.
func (v reservationView) GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error) {
	return v.GetByID(ctx, id)
}

func (v reservationView) LockInRange(ctx context.Context, window model.Interval) ([]uint64, error) {
	st, done := v.begin()
	defer done()
	ids := make([]uint64, 0)
	for id, row := range st.reservations {
		if row.header.Window().Overlaps(window) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (v reservationView) ListInRange(ctx context.Context, window model.Interval) ([]model.Reservation, error) {
	st, done := v.begin()
	defer done()
	return collect(st, func(row *reservationRow) bool {
		return row.header.Window().Overlaps(window)
	}), nil
}

func (v reservationView) ListByPerson(ctx context.Context, personID uint64, from time.Time) ([]model.Reservation, error) {
	st, done := v.begin()
	defer done()
	return collect(st, func(row *reservationRow) bool {
		if !row.header.EndsAt.After(from) {
			return false
		}
		for _, p := range row.participants {
			if p.PersonID == personID {
				return true
			}
		}
		return false
	}), nil
}

func (v reservationView) ListPendingOverlapping(ctx context.Context, window model.Interval, excludeID uint64) ([]model.Reservation, error) {
	st, done := v.begin()
	defer done()
	return collect(st, func(row *reservationRow) bool {
		return row.header.ID != excludeID &&
			row.header.Status == model.StatusPending &&
			row.header.Window().Overlaps(window)
	}), nil
}

func (v reservationView) Insert(ctx context.Context, res *model.Reservation) error {
	st, done := v.begin()
	defer done()
	seen := make(map[uint64]bool, len(res.Participants))
	for _, p := range res.Participants {
		if seen[p.PersonID] {
			return repository.ErrDuplicate
		}
		seen[p.PersonID] = true
	}
	stationIDs := res.StationIDs()
	if err := checkStations(st, stationIDs); err != nil {
		return err
	}
	res.ID = st.next()
	row := &reservationRow{
		header: model.Reservation{
			ID:        res.ID,
			StartsAt:  res.StartsAt,
			EndsAt:    res.EndsAt,
			Status:    res.Status,
			CreatedBy: res.CreatedBy,
			CreatedAt: res.CreatedAt,
			UpdatedAt: res.UpdatedAt,
		},
		stationIDs:   stationIDs,
		participants: append([]model.Participant(nil), res.Participants...),
	}
	for i := range res.Comments {
		res.Comments[i].ID = st.next()
		row.comments = append(row.comments, res.Comments[i])
	}
	st.reservations[res.ID] = row
	return nil
}

// checkStations mirrors the foreign key from reservation_stations to stations.
func checkStations(st *state, ids []uint64) error {
	for _, id := range ids {
		if _, ok := st.stations[id]; !ok {
			return repository.ErrNotFound
		}
	}
	return nil
}

func (v reservationView) row(st *state, id uint64) (*reservationRow, error) {
	row, ok := st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return row, nil
}

func (v reservationView) UpdateStatus(ctx context.Context, id uint64, status model.Status, at time.Time) error {
	st, done := v.begin()
	defer done()
	row, err := v.row(st, id)
	if err != nil {
		return err
	}
	row.header.Status, row.header.UpdatedAt = status, at
	return nil
}

func (v reservationView) Delete(ctx context.Context, id uint64) error {
	st, done := v.begin()
	defer done()
	if _, err := v.row(st, id); err != nil {
		return err
	}
	delete(st.reservations, id)
	return nil
}

func (v reservationView) AddParticipant(ctx context.Context, reservationID uint64, p model.Participant) error {
	st, done := v.begin()
	defer done()
	row, err := v.row(st, reservationID)
	if err != nil {
		return err
	}
	for _, existing := range row.participants {
		if existing.PersonID == p.PersonID {
			return repository.ErrDuplicate
		}
	}
	row.participants = append(row.participants, p)
	return nil
}

func (v reservationView) RemoveParticipant(ctx context.Context, reservationID, personID uint64) error {
	st, done := v.begin()
	defer done()
	row, err := v.row(st, reservationID)
	if err != nil {
		return err
	}
	for i, p := range row.participants {
		if p.PersonID == personID {
			row.participants = append(row.participants[:i:i], row.participants[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (v reservationView) ReplaceStations(ctx context.Context, reservationID uint64, stationIDs []uint64) error {
	st, done := v.begin()
	defer done()
	row, err := v.row(st, reservationID)
	if err != nil {
		return err
	}
	if err := checkStations(st, stationIDs); err != nil {
		return err
	}
	row.stationIDs = append([]uint64(nil), stationIDs...)
	return nil
}

func (v reservationView) AppendComment(ctx context.Context, reservationID uint64, c *model.CommentEntry) error {
	st, done := v.begin()
	defer done()
	row, err := v.row(st, reservationID)
	if err != nil {
		return err
	}
	c.ID = st.next()
	row.comments = append(row.comments, *c)
	return nil
}

func (v reservationView) StationConflict(ctx context.Context, stationIDs []uint64, window model.Interval, excludeID uint64) (bool, error) {
	st, done := v.begin()
	defer done()
	wanted := make(map[uint64]bool, len(stationIDs))
	for _, id := range stationIDs {
		wanted[id] = true
	}
	for _, row := range st.reservations {
		if row.header.ID == excludeID || !row.header.Window().Overlaps(window) {
			continue
		}
		for _, sid := range row.stationIDs {
			if wanted[sid] {
				return true, nil
			}
		}
	}
	return false, nil
}

func affected(st *state, keep func(row *reservationRow) bool) []model.Affected {
	out := make([]model.Affected, 0)
	for _, res := range collect(st, keep) {
		for _, p := range res.Participants {
			out = append(out, model.Affected{PersonID: p.PersonID, ReservationID: res.ID, Window: res.Window()})
		}
	}
	return out
}

func (v reservationView) AffectedByWindow(ctx context.Context, window model.Interval) ([]model.Affected, error) {
	st, done := v.begin()
	defer done()
	return affected(st, func(row *reservationRow) bool {
		return row.header.Window().Overlaps(window)
	}), nil
}

func (v reservationView) AffectedByStation(ctx context.Context, stationID uint64, from time.Time) ([]model.Affected, error) {
	st, done := v.begin()
	defer done()
	return affected(st, func(row *reservationRow) bool {
		if !row.header.EndsAt.After(from) {
			return false
		}
		for _, sid := range row.stationIDs {
			if sid == stationID {
				return true
			}
		}
		return false
	}), nil
}
