package model

import "time"

// Status is the derived state of a reservation.  It is a projection over
// the participant list and must never be set independently; use
// DeriveStatus.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// Reservation is a booked session on the range.  It may span several
// stations (possibly none until an instructor assigns them) and always has
// at least one participant.
//
// Fields:
//  ID           – primary key identifier.
//  StartsAt     – inclusive start of the session (UTC).
//  EndsAt       – exclusive end of the session (UTC).
//  Status       – cached DeriveStatus(Participants).
//  CreatedBy    – person who created the reservation.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
//  Stations     – linked stations ordered by display order.
//  Participants – participants ordered by join time.
//  Comments     – append-only comment log in chronological order.
type Reservation struct {
	ID           uint64         `json:"id"`
	StartsAt     time.Time      `json:"starts_at"`
	EndsAt       time.Time      `json:"ends_at"`
	Status       Status         `json:"status"`
	CreatedBy    uint64         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Stations     []Station      `json:"stations"`
	Participants []Participant  `json:"participants"`
	Comments     []CommentEntry `json:"comments"`
}

// Participant links a person to a reservation.  IsInstructor records the
// capacity in which the person joined, not their account role.
type Participant struct {
	PersonID     uint64    `json:"person_id"`     // reservation_participants.person_id
	DisplayName  string    `json:"display_name"`  // users.display_name, filled on read
	JoinedAt     time.Time `json:"joined_at"`     // reservation_participants.joined_at
	IsInstructor bool      `json:"is_instructor"` // reservation_participants.is_instructor
}

// CommentEntry is one attributed line of a reservation's comment log.
type CommentEntry struct {
	ID        uint64    `json:"id"`
	AuthorID  uint64    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// DeriveStatus returns StatusConfirmed when at least one participant is an
// instructor and StatusPending otherwise.
func DeriveStatus(participants []Participant) Status {
	for _, p := range participants {
		if p.IsInstructor {
			return StatusConfirmed
		}
	}
	return StatusPending
}

// Window returns the reservation's interval.
func (r *Reservation) Window() Interval { return NewInterval(r.StartsAt, r.EndsAt) }

// Participant returns the participant entry for personID, if any.
func (r *Reservation) Participant(personID uint64) (Participant, bool) {
	for _, p := range r.Participants {
		if p.PersonID == personID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantIDs lists participant person IDs in join order, skipping the
// given IDs.
func (r *Reservation) ParticipantIDs(except ...uint64) []uint64 {
	out := make([]uint64, 0, len(r.Participants))
next:
	for _, p := range r.Participants {
		for _, e := range except {
			if p.PersonID == e {
				continue next
			}
		}
		out = append(out, p.PersonID)
	}
	return out
}

// StationIDs lists the linked station IDs.
func (r *Reservation) StationIDs() []uint64 {
	out := make([]uint64, 0, len(r.Stations))
	for _, s := range r.Stations {
		out = append(out, s.ID)
	}
	return out
}

// Affected identifies a participant whose reservation is touched by a
// closure or a station deactivation.
type Affected struct {
	PersonID      uint64   `json:"person_id"`
	ReservationID uint64   `json:"reservation_id"`
	Window        Interval `json:"window"`
}

// AffectedPersonIDs de-duplicates the person IDs in a list of Affected,
// keeping first-seen order.
func AffectedPersonIDs(list []Affected) []uint64 {
	seen := make(map[uint64]struct{}, len(list))
	out := make([]uint64, 0, len(list))
	for _, a := range list {
		if _, ok := seen[a.PersonID]; ok {
			continue
		}
		seen[a.PersonID] = struct{}{}
		out = append(out, a.PersonID)
	}
	return out
}
