package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/repository"
)

// Outcome tells a caller what a withdrawal or delete did.
type Outcome int

const (
	// OutcomeLeft: the actor left and the reservation still exists.
	OutcomeLeft Outcome = iota + 1
	// OutcomeDeletedLastParticipant: the actor was the last participant,
	// so the reservation was deleted.
	OutcomeDeletedLastParticipant
	// OutcomeDeleted: an administrator deleted the reservation.
	OutcomeDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLeft:
		return "left"
	case OutcomeDeletedLastParticipant:
		return "deleted_last_participant"
	case OutcomeDeleted:
		return "deleted"
	}
	return "unknown"
}

// CreateInput describes a new reservation.
type CreateInput struct {
	StationIDs []uint64
	StartsAt   time.Time
	EndsAt     time.Time
	Comment    string
}

// BookingEngine runs the reservation lifecycle: create (with the merge of
// pending sessions into a new instructor session), join, leave, restaff,
// comment and delete.  Status is always recomputed from participants.
type BookingEngine struct {
	base
	sanitizer *bluemonday.Policy
}

// NewBookingEngine wires the engine over store.  notifier may be nil, in
// which case no notifications are sent.
func NewBookingEngine(store repository.Store, notifier notify.Notifier, log *zap.Logger, opts ...Option) *BookingEngine {
	return &BookingEngine{
		base:      newBase(store, notifier, log, opts),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// CreateReservation books [in.StartsAt, in.EndsAt).  Instructors must name
// stations and are exempt from the station overlap check; every other
// PENDING reservation overlapping their window is merged into the new one.
func (e *BookingEngine) CreateReservation(ctx context.Context, actor model.Actor, in CreateInput) (*model.Reservation, error) {
	instructor := CanInstruct(actor)
	stationIDs := uniqueIDs(in.StationIDs)
	if instructor && len(stationIDs) == 0 {
		return nil, ErrStationsRequired
	}
	window := model.NewInterval(in.StartsAt, in.EndsAt)
	if !window.Valid() {
		return nil, ErrInvalidInterval
	}
	comment := e.sanitize(in.Comment)
	now := e.now()

	var created *model.Reservation
	var transferred []uint64
	var out outbox
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		transferred = nil
		if err := tx.Lock(ctx, repository.GuardReservations); err != nil {
			return storage("lock reservations", err)
		}
		closed, err := tx.Closures().AnyOverlapping(ctx, window, 0)
		if err != nil {
			return storage("check closures", err)
		}
		if closed {
			return ErrFacilityClosed
		}
		// Phase one: lock and collect the pending sessions to absorb.  Joins
		// and leaves on them wait until this transaction ends.
		var absorbed []model.Reservation
		if instructor {
			if _, err := tx.Reservations().LockInRange(ctx, window); err != nil {
				return storage("lock merge candidates", err)
			}
			absorbed, err = tx.Reservations().ListPendingOverlapping(ctx, window, 0)
			if err != nil {
				return storage("list merge candidates", err)
			}
		}
		stations, err := activeStations(ctx, tx, stationIDs)
		if err != nil {
			return err
		}
		if !instructor && len(stationIDs) > 0 {
			taken, err := tx.Reservations().StationConflict(ctx, stationIDs, window, 0)
			if err != nil {
				return storage("check station conflict", err)
			}
			if taken {
				return ErrStationAlreadyBooked
			}
		}

		res := &model.Reservation{
			StartsAt:  window.Start,
			EndsAt:    window.End,
			CreatedBy: actor.PersonID,
			CreatedAt: now,
			UpdatedAt: now,
			Stations:  stations,
			Participants: []model.Participant{
				{PersonID: actor.PersonID, JoinedAt: now, IsInstructor: instructor},
			},
		}
		if comment != "" {
			res.Comments = []model.CommentEntry{{AuthorID: actor.PersonID, Body: comment, CreatedAt: now}}
		}

		transferred = mergeInto(res, absorbed)
		res.Status = model.DeriveStatus(res.Participants)

		// Phase two: write the new aggregate, then drop the absorbed ones.
		if err := tx.Reservations().Insert(ctx, res); err != nil {
			return storage("insert reservation", err)
		}
		for _, old := range absorbed {
			if err := tx.Reservations().Delete(ctx, old.ID); err != nil {
				return storage("delete merged reservation", err)
			}
		}

		created, err = tx.Reservations().GetByID(ctx, res.ID)
		if err != nil {
			return storage("reload reservation", err)
		}
		if len(transferred) > 0 {
			out.add(transferred, notify.SeveritySuccess, "Session confirmed",
				fmt.Sprintf("An instructor has validated your session by joining as instructor (%s).", formatWindow(created.Window())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, out)
	e.log.Info("reservation created",
		zap.Uint64("reservation_id", created.ID),
		zap.Uint64("person_id", actor.PersonID),
		zap.Bool("instructor", instructor),
		zap.Int("merged_participants", len(transferred)))
	return created, nil
}

// mergeInto moves the participants of absorbed into res, keeping their join
// time and instructor flag and skipping anyone already on res.  The comment
// logs are carried over as well.  It returns the person IDs that moved.
func mergeInto(res *model.Reservation, absorbed []model.Reservation) []uint64 {
	var moved []uint64
	for _, old := range absorbed {
		for _, p := range old.Participants {
			if IsParticipant(res, p.PersonID) {
				continue
			}
			res.Participants = append(res.Participants, model.Participant{
				PersonID:     p.PersonID,
				JoinedAt:     p.JoinedAt,
				IsInstructor: p.IsInstructor,
			})
			moved = append(moved, p.PersonID)
		}
		for _, c := range old.Comments {
			res.Comments = append(res.Comments, model.CommentEntry{AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt})
		}
	}
	sort.SliceStable(res.Comments, func(i, j int) bool {
		return res.Comments[i].CreatedAt.Before(res.Comments[j].CreatedAt)
	})
	return moved
}

// AddParticipant puts the actor on the reservation.  An instructor joining
// confirms the reservation in place; there is no merge on join.
func (e *BookingEngine) AddParticipant(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, error) {
	instructor := CanInstruct(actor)
	now := e.now()

	var updated *model.Reservation
	var out outbox
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return notFound("load reservation", err, ErrNotFound)
		}
		if IsParticipant(res, actor.PersonID) {
			return ErrAlreadyJoined
		}
		p := model.Participant{PersonID: actor.PersonID, JoinedAt: now, IsInstructor: instructor}
		if err := tx.Reservations().AddParticipant(ctx, res.ID, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyJoined
			}
			return storage("add participant", err)
		}
		status := model.DeriveStatus(append(res.Participants, p))
		if err := tx.Reservations().UpdateStatus(ctx, res.ID, status, now); err != nil {
			return storage("update status", err)
		}
		if instructor {
			name := displayName(ctx, tx, actor.PersonID, "An instructor")
			out.add(res.ParticipantIDs(actor.PersonID), notify.SeveritySuccess, "Instructor joined",
				fmt.Sprintf("%s has joined your session (%s) as instructor.", name, formatWindow(res.Window())))
		}
		updated, err = tx.Reservations().GetByID(ctx, res.ID)
		return storage("reload reservation", err)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, out)
	return updated, nil
}

// RemoveParticipant takes the actor off the reservation.  When the actor was
// the last participant the reservation is deleted.
func (e *BookingEngine) RemoveParticipant(ctx context.Context, actor model.Actor, reservationID uint64) (Outcome, error) {
	var outcome Outcome
	var out outbox
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		outcome, err = e.removeParticipant(ctx, tx, actor, reservationID, &out)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.dispatch(ctx, out)
	return outcome, nil
}

func (e *BookingEngine) removeParticipant(ctx context.Context, tx repository.Tx, actor model.Actor, reservationID uint64, out *outbox) (Outcome, error) {
	res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
	if err != nil {
		return 0, notFound("load reservation", err, ErrNotFound)
	}
	leaving, ok := res.Participant(actor.PersonID)
	if !ok {
		return 0, ErrNotJoined
	}
	if err := tx.Reservations().RemoveParticipant(ctx, res.ID, actor.PersonID); err != nil {
		return 0, notFound("remove participant", err, ErrNotJoined)
	}

	remaining := make([]model.Participant, 0, len(res.Participants))
	for _, p := range res.Participants {
		if p.PersonID != actor.PersonID {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		if err := tx.Reservations().Delete(ctx, res.ID); err != nil {
			return 0, storage("delete reservation", err)
		}
		return OutcomeDeletedLastParticipant, nil
	}

	status := model.DeriveStatus(remaining)
	if err := tx.Reservations().UpdateStatus(ctx, res.ID, status, e.now()); err != nil {
		return 0, storage("update status", err)
	}
	if leaving.IsInstructor {
		name := displayName(ctx, tx, actor.PersonID, "The instructor")
		severity, message := notify.SeverityInfo, fmt.Sprintf("%s has withdrawn from your session (%s).", name, formatWindow(res.Window()))
		if status == model.StatusPending {
			severity = notify.SeverityWarning
			message += " The session is pending until another instructor joins."
		}
		out.add(res.ParticipantIDs(actor.PersonID), severity, "Instructor withdrew", message)
	}
	return OutcomeLeft, nil
}

// UpdateSessionStations replaces the station set of a session.  Only a
// participant who joined as instructor may do this.
func (e *BookingEngine) UpdateSessionStations(ctx context.Context, actor model.Actor, reservationID uint64, stationIDs []uint64) (*model.Reservation, error) {
	stationIDs = uniqueIDs(stationIDs)
	now := e.now()

	var updated *model.Reservation
	var out outbox
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return notFound("load reservation", err, ErrNotFound)
		}
		if !IsInstructorOn(res, actor.PersonID) {
			return ErrNotAuthorized
		}
		if len(stationIDs) == 0 {
			return ErrStationsRequired
		}
		stations, err := activeStations(ctx, tx, stationIDs)
		if err != nil {
			return err
		}
		if err := tx.Reservations().ReplaceStations(ctx, res.ID, stationIDs); err != nil {
			return storage("replace stations", err)
		}
		if err := tx.Reservations().UpdateStatus(ctx, res.ID, model.DeriveStatus(res.Participants), now); err != nil {
			return storage("touch reservation", err)
		}
		names := make([]string, 0, len(stations))
		for _, s := range stations {
			names = append(names, s.Name)
		}
		out.add(res.ParticipantIDs(actor.PersonID), notify.SeverityInfo, "Stations updated",
			fmt.Sprintf("Your session (%s) now uses: %s.", formatWindow(res.Window()), strings.Join(names, ", ")))
		updated, err = tx.Reservations().GetByID(ctx, res.ID)
		return storage("reload reservation", err)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, out)
	return updated, nil
}

// AppendCommentEntry adds an attributed entry to the reservation's comment
// log.  Entries are never edited or removed.
func (e *BookingEngine) AppendCommentEntry(ctx context.Context, actor model.Actor, reservationID uint64, text string) (*model.CommentEntry, error) {
	body := e.sanitize(text)
	if body == "" {
		return nil, withMessage(ErrInvalidInput, "comment must not be empty")
	}
	entry := &model.CommentEntry{AuthorID: actor.PersonID, Body: body, CreatedAt: e.now()}
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return notFound("load reservation", err, ErrNotFound)
		}
		if !IsParticipant(res, actor.PersonID) {
			return ErrNotAuthorized
		}
		return storage("append comment", tx.Reservations().AppendComment(ctx, res.ID, entry))
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteReservation hard-deletes the reservation when the actor is an
// administrator.  For anyone else it is RemoveParticipant.
func (e *BookingEngine) DeleteReservation(ctx context.Context, actor model.Actor, reservationID uint64) (Outcome, error) {
	if !CanAdminister(actor) {
		return e.RemoveParticipant(ctx, actor, reservationID)
	}
	var out outbox
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return notFound("load reservation", err, ErrNotFound)
		}
		if err := tx.Reservations().Delete(ctx, res.ID); err != nil {
			return notFound("delete reservation", err, ErrNotFound)
		}
		out.add(res.ParticipantIDs(actor.PersonID), notify.SeverityDanger, "Reservation cancelled",
			fmt.Sprintf("Your session (%s) was cancelled by an administrator.", formatWindow(res.Window())))
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.dispatch(ctx, out)
	e.log.Info("reservation deleted by administrator",
		zap.Uint64("reservation_id", reservationID),
		zap.Uint64("person_id", actor.PersonID))
	return OutcomeDeleted, nil
}

// GetReservation returns the fully hydrated reservation.
func (e *BookingEngine) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := e.store.Reservations().GetByID(ctx, id)
	if err != nil {
		return nil, notFound("load reservation", err, ErrNotFound)
	}
	res.Status = model.DeriveStatus(res.Participants)
	return res, nil
}

// ListMonth returns every reservation intersecting the calendar month.
func (e *BookingEngine) ListMonth(ctx context.Context, year int, month time.Month) ([]model.Reservation, error) {
	if month < time.January || month > time.December {
		return nil, withMessage(ErrInvalidInput, "month must be between 1 and 12")
	}
	list, err := e.store.Reservations().ListInRange(ctx, model.MonthInterval(year, month))
	if err != nil {
		return nil, storage("list month", err)
	}
	for i := range list {
		list[i].Status = model.DeriveStatus(list[i].Participants)
	}
	return list, nil
}

// ListForPerson returns the person's reservations that have not ended.
func (e *BookingEngine) ListForPerson(ctx context.Context, personID uint64) ([]model.Reservation, error) {
	list, err := e.store.Reservations().ListByPerson(ctx, personID, e.now())
	if err != nil {
		return nil, storage("list reservations for person", err)
	}
	for i := range list {
		list[i].Status = model.DeriveStatus(list[i].Participants)
	}
	return list, nil
}

// sanitize strips markup from comment text.  The policy also escapes the
// text it keeps; that is undone so the log holds what the author typed.
func (e *BookingEngine) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(e.sanitizer.Sanitize(s)))
}
