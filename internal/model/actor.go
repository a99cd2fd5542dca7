package model

// Capability is a privilege an actor carries into an operation.
type Capability uint8

const (
	// CapInstructor lets the actor supervise sessions; an instructor who
	// creates or joins a reservation does so as an instructor participant.
	CapInstructor Capability = 1 << iota
	// CapAdmin lets the actor manage the facility and delete any reservation.
	CapAdmin
)

// Actor is the caller of a service operation.  Authentication happens
// outside the core; whoever builds the Actor vouches for its capabilities.
type Actor struct {
	PersonID uint64
	Caps     Capability
}

// ActorFor builds the actor for a user acting under the given account role.
func ActorFor(personID uint64, role Role) Actor {
	a := Actor{PersonID: personID}
	switch role {
	case RoleInstructor:
		a.Caps = CapInstructor
	case RoleAdmin:
		a.Caps = CapAdmin
	}
	return a
}

// Has reports whether the actor carries every capability in c.
func (a Actor) Has(c Capability) bool { return a.Caps&c == c }

// IsInstructor reports whether the actor acts with instructor privilege.
func (a Actor) IsInstructor() bool { return a.Has(CapInstructor) }

// IsAdmin reports whether the actor acts with administrator privilege.
func (a Actor) IsAdmin() bool { return a.Has(CapAdmin) }
