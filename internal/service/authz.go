package service

import "github.com/iliyamo/range-booking/internal/model"

// Every role or standing check of the services goes through these helpers.

// CanInstruct reports whether the actor acts with instructor privilege.
func CanInstruct(a model.Actor) bool { return a.IsInstructor() }

// CanAdminister reports whether the actor may manage the facility.
func CanAdminister(a model.Actor) bool { return a.IsAdmin() }

// IsParticipant reports whether personID is on the reservation.
func IsParticipant(res *model.Reservation, personID uint64) bool {
	_, ok := res.Participant(personID)
	return ok
}

// IsInstructorOn reports whether personID joined the reservation as an
// instructor.  The account role does not matter here.
func IsInstructorOn(res *model.Reservation, personID uint64) bool {
	p, ok := res.Participant(personID)
	return ok && p.IsInstructor
}
