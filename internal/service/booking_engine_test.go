package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
)

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	lane := f.station(t, "Lane 1")
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Actor
		in    CreateInput
		want  error
	}{
		{"end before start", memberA, CreateInput{StartsAt: at(11, 0), EndsAt: at(10, 0)}, ErrInvalidInterval},
		{"empty interval", memberA, CreateInput{StartsAt: at(10, 0), EndsAt: at(10, 0)}, ErrInvalidInterval},
		{"instructor without stations", instructor, CreateInput{StartsAt: at(10, 0), EndsAt: at(11, 0)}, ErrStationsRequired},
		{"unknown station", memberA, CreateInput{StationIDs: []uint64{lane.ID + 100}, StartsAt: at(10, 0), EndsAt: at(11, 0)}, ErrInvalidStation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateReservation(ctx, tt.actor, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateReservation_MemberWithoutStations(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	res := f.create(t, memberA, nil, at(10, 0), at(12, 0))
	assertStatus(t, res, model.StatusPending)
	if len(res.Stations) != 0 || len(res.Participants) != 1 || res.Participants[0].IsInstructor {
		t.Fatalf("unexpected reservation %+v", res)
	}
	if res.CreatedBy != memberA.PersonID {
		t.Fatalf("created_by = %d", res.CreatedBy)
	}
}

// Confirmed iff an instructor participant exists; the last instructor
// leaving flips the reservation back to pending.
func TestStatusFollowsInstructorParticipants(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")

	res := f.create(t, memberA, []uint64{lane.ID}, at(10, 0), at(11, 0))
	assertStatus(t, res, model.StatusPending)

	res, err := f.engine.AddParticipant(ctx, instructor, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, res, model.StatusConfirmed)
	if got := f.rec.count(memberA.PersonID); got != 1 {
		t.Fatalf("member notified %d times on instructor join, want 1", got)
	}
	if got := f.rec.count(instructor.PersonID); got != 0 {
		t.Fatalf("joining instructor notified %d times", got)
	}

	res, err = f.engine.AddParticipant(ctx, coach, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, res, model.StatusConfirmed)

	outcome, err := f.engine.RemoveParticipant(ctx, instructor, res.ID)
	if err != nil || outcome != OutcomeLeft {
		t.Fatalf("remove instructor = %v, %v", outcome, err)
	}
	res, _ = f.engine.GetReservation(ctx, res.ID)
	assertStatus(t, res, model.StatusConfirmed)

	f.rec.reset()
	if _, err := f.engine.RemoveParticipant(ctx, coach, res.ID); err != nil {
		t.Fatal(err)
	}
	res, _ = f.engine.GetReservation(ctx, res.ID)
	assertStatus(t, res, model.StatusPending)
	d, ok := f.rec.last(memberA.PersonID)
	if !ok || d.title != "Instructor withdrew" {
		t.Fatalf("member not told about withdrawal: %+v", f.rec.sent)
	}
}

func TestRemoveParticipant_LastParticipantDeletes(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))
	if _, err := f.engine.AddParticipant(ctx, memberB, res.ID); err != nil {
		t.Fatal(err)
	}

	outcome, err := f.engine.RemoveParticipant(ctx, memberA, res.ID)
	if err != nil || outcome != OutcomeLeft {
		t.Fatalf("first leave = %v, %v", outcome, err)
	}
	if f.rec.count(memberB.PersonID) != 0 {
		t.Fatal("member leaving must not notify")
	}
	outcome, err = f.engine.RemoveParticipant(ctx, memberB, res.ID)
	if err != nil || outcome != OutcomeDeletedLastParticipant {
		t.Fatalf("last leave = %v, %v", outcome, err)
	}
	if _, err := f.engine.GetReservation(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reservation still readable: %v", err)
	}
}

func TestParticipantErrors(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))

	if _, err := f.engine.AddParticipant(ctx, memberA, res.ID); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join err = %v", err)
	}
	if _, err := f.engine.AddParticipant(ctx, memberB, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("join missing err = %v", err)
	}
	if _, err := f.engine.RemoveParticipant(ctx, memberB, res.ID); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("leave not joined err = %v", err)
	}
	if _, err := f.engine.RemoveParticipant(ctx, memberA, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("leave missing err = %v", err)
	}
}

func TestCreateReservation_MemberOverlapOnStation(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")
	other := f.station(t, "Lane 2")

	f.create(t, memberA, []uint64{lane.ID}, at(10, 0), at(11, 0))

	_, err := f.engine.CreateReservation(ctx, memberB, CreateInput{StationIDs: []uint64{lane.ID}, StartsAt: at(10, 30), EndsAt: at(11, 30)})
	if !errors.Is(err, ErrStationAlreadyBooked) {
		t.Fatalf("member overlap err = %v", err)
	}
	if se, ok := AsError(err); !ok || se.Kind != KindConflict {
		t.Fatalf("overlap error kind = %+v", se)
	}

	// Touching intervals and other stations are fine.
	f.create(t, memberB, []uint64{lane.ID}, at(11, 0), at(12, 0))
	f.create(t, memberC, []uint64{other.ID}, at(10, 30), at(11, 30))

	res := f.create(t, instructor, []uint64{lane.ID}, at(10, 30), at(11, 30))
	assertStatus(t, res, model.StatusConfirmed)
}

func TestCreateReservation_ClosureBlocksEveryone(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")
	if _, err := f.closures.Create(ctx, ClosureInput{StartsAt: at(9, 0), EndsAt: at(12, 0), Category: "MAINTENANCE"}); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		actor model.Actor
		in    CreateInput
	}{
		{"member", memberA, CreateInput{StartsAt: at(11, 0), EndsAt: at(13, 0)}},
		{"member with station", memberA, CreateInput{StationIDs: []uint64{lane.ID}, StartsAt: at(8, 0), EndsAt: at(9, 30)}},
		{"instructor", instructor, CreateInput{StationIDs: []uint64{lane.ID}, StartsAt: at(9, 0), EndsAt: at(12, 0)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.CreateReservation(ctx, tc.actor, tc.in); !errors.Is(err, ErrFacilityClosed) {
				t.Fatalf("err = %v, want FacilityClosed", err)
			}
		})
	}

	f.create(t, memberA, nil, at(12, 0), at(13, 0))
}

func TestCreateReservation_MergesPendingSessions(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")

	pending := f.create(t, memberA, nil, at(10, 0), at(12, 0))
	if _, err := f.engine.AddParticipant(ctx, memberB, pending.ID); err != nil {
		t.Fatal(err)
	}
	before, _ := f.engine.GetReservation(ctx, pending.ID)
	joinedA, _ := before.Participant(memberA.PersonID)

	// A pending session outside the window stays put.
	later := f.create(t, memberC, nil, at(14, 0), at(15, 0))

	res := f.create(t, instructor, []uint64{lane.ID}, at(11, 0), at(13, 0))

	if _, err := f.engine.GetReservation(ctx, pending.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absorbed reservation still exists: %v", err)
	}
	if _, err := f.engine.GetReservation(ctx, later.ID); err != nil {
		t.Fatalf("unrelated reservation merged: %v", err)
	}
	got := ids(res.Participants)
	if len(got) != 3 || !got[memberA.PersonID] || !got[memberB.PersonID] || !got[instructor.PersonID] {
		t.Fatalf("participants = %+v", res.Participants)
	}
	assertStatus(t, res, model.StatusConfirmed)
	moved, _ := res.Participant(memberA.PersonID)
	if !moved.JoinedAt.Equal(joinedA.JoinedAt) || moved.IsInstructor {
		t.Fatalf("merged participant lost its join data: %+v vs %+v", moved, joinedA)
	}
	for _, id := range []uint64{memberA.PersonID, memberB.PersonID} {
		if n := f.rec.count(id); n != 1 {
			t.Fatalf("person %d notified %d times, want 1", id, n)
		}
	}
	if f.rec.count(instructor.PersonID) != 0 || f.rec.count(memberC.PersonID) != 0 {
		t.Fatalf("unexpected notifications: %+v", f.rec.sent)
	}
}

func TestCreateReservation_MergeSkipsConfirmedAndDuplicates(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")
	lane2 := f.station(t, "Lane 2")

	confirmed := f.create(t, coach, []uint64{lane2.ID}, at(10, 0), at(11, 0))
	pending := f.create(t, memberA, nil, at(10, 0), at(11, 0))
	// The instructor is already on the pending session as a plain member.
	if _, err := f.engine.AddParticipant(ctx, model.Actor{PersonID: instructor.PersonID}, pending.ID); err != nil {
		t.Fatal(err)
	}

	res := f.create(t, instructor, []uint64{lane.ID}, at(10, 0), at(11, 0))
	if len(res.Participants) != 2 {
		t.Fatalf("participants = %+v", res.Participants)
	}
	me, _ := res.Participant(instructor.PersonID)
	if !me.IsInstructor {
		t.Fatal("acting instructor lost the instructor flag")
	}
	if _, err := f.engine.GetReservation(ctx, confirmed.ID); err != nil {
		t.Fatalf("confirmed session was merged: %v", err)
	}
	if f.rec.count(instructor.PersonID) != 0 {
		t.Fatal("acting instructor notified about own merge")
	}
}

func TestCreateReservation_RoundTrip(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	a := f.station(t, "Lane A")
	b := f.station(t, "Lane B")

	created, err := f.engine.CreateReservation(ctx, instructor, CreateInput{
		StationIDs: []uint64{b.ID, a.ID, b.ID},
		StartsAt:   at(10, 0).In(time.FixedZone("CET", 3600)),
		EndsAt:     at(11, 0),
		Comment:    "Bring <b>ear</b> protection",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.engine.GetReservation(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.StartsAt.Equal(at(10, 0)) || !got.EndsAt.Equal(at(11, 0)) || got.StartsAt.Location() != time.UTC {
		t.Fatalf("window = %v..%v", got.StartsAt, got.EndsAt)
	}
	if len(got.Stations) != 2 || got.Stations[0].ID != a.ID || got.Stations[1].ID != b.ID {
		t.Fatalf("stations = %+v", got.Stations)
	}
	if len(got.Participants) != 1 || got.Participants[0].PersonID != instructor.PersonID {
		t.Fatalf("participants = %+v", got.Participants)
	}
	if len(got.Comments) != 1 || got.Comments[0].Body != "Bring ear protection" {
		t.Fatalf("comments = %+v", got.Comments)
	}
}

func TestUpdateSessionStations(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	a := f.station(t, "Lane A")
	b := f.station(t, "Lane B")
	closed := f.station(t, "Lane C")
	if err := f.facility.Deactivate(ctx, closed.ID); err != nil {
		t.Fatal(err)
	}

	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))
	if _, err := f.engine.UpdateSessionStations(ctx, memberA, res.ID, []uint64{a.ID}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("member restaff err = %v", err)
	}
	// Instructor privilege alone is not enough; the actor must be on the session as instructor.
	if _, err := f.engine.UpdateSessionStations(ctx, instructor, res.ID, []uint64{a.ID}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("outsider restaff err = %v", err)
	}
	if _, err := f.engine.AddParticipant(ctx, instructor, res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.UpdateSessionStations(ctx, instructor, res.ID, []uint64{a.ID, closed.ID}); !errors.Is(err, ErrInvalidStation) {
		t.Fatalf("inactive station err = %v", err)
	}
	if _, err := f.engine.UpdateSessionStations(ctx, instructor, 9999, []uint64{a.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing reservation err = %v", err)
	}

	f.rec.reset()
	updated, err := f.engine.UpdateSessionStations(ctx, instructor, res.ID, []uint64{b.ID, a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Stations) != 2 {
		t.Fatalf("stations = %+v", updated.Stations)
	}
	d, ok := f.rec.last(memberA.PersonID)
	if !ok || !strings.Contains(d.message, "Lane A, Lane B") {
		t.Fatalf("station list not sent: %+v", f.rec.sent)
	}
	if f.rec.count(instructor.PersonID) != 0 {
		t.Fatal("acting instructor notified")
	}
}

func TestAppendCommentEntry(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))
	if _, err := f.engine.AddParticipant(ctx, memberB, res.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.AppendCommentEntry(ctx, memberA, res.ID, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.AppendCommentEntry(ctx, memberB, res.ID, "second <script>x()</script>"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.AppendCommentEntry(ctx, memberC, res.ID, "outsider"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("non-participant comment err = %v", err)
	}
	if _, err := f.engine.AppendCommentEntry(ctx, memberA, res.ID, "  <i></i> "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty comment err = %v", err)
	}

	got, _ := f.engine.GetReservation(ctx, res.ID)
	if len(got.Comments) != 2 {
		t.Fatalf("comments = %+v", got.Comments)
	}
	if got.Comments[0].Body != "first" || got.Comments[0].AuthorID != memberA.PersonID {
		t.Fatalf("first entry = %+v", got.Comments[0])
	}
	if got.Comments[1].Body != "second" || got.Comments[1].AuthorID != memberB.PersonID {
		t.Fatalf("second entry = %+v", got.Comments[1])
	}
}

func TestAppendCommentEntry_KeepsPlainText(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))

	tests := []struct {
		in, want string
	}{
		{"Tom & Jerry", "Tom & Jerry"},
		{"bring 9mm < 50 rounds", "bring 9mm < 50 rounds"},
		{`say "hi"`, `say "hi"`},
		{"O'Brien", "O'Brien"},
		{"typed &amp; literally", "typed &amp; literally"},
		{"<b>zero</b> the scope", "zero the scope"},
	}
	for _, tt := range tests {
		entry, err := f.engine.AppendCommentEntry(ctx, memberA, res.ID, tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if entry.Body != tt.want {
			t.Errorf("%q stored as %q, want %q", tt.in, entry.Body, tt.want)
		}
	}
	got, _ := f.engine.GetReservation(ctx, res.ID)
	if len(got.Comments) != len(tests) || got.Comments[0].Body != "Tom & Jerry" {
		t.Fatalf("comments = %+v", got.Comments)
	}
}

func TestDeleteReservation(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()

	res := f.create(t, memberA, nil, at(10, 0), at(11, 0))
	if _, err := f.engine.AddParticipant(ctx, memberB, res.ID); err != nil {
		t.Fatal(err)
	}
	// Non-admins withdraw.
	outcome, err := f.engine.DeleteReservation(ctx, memberA, res.ID)
	if err != nil || outcome != OutcomeLeft {
		t.Fatalf("member delete = %v, %v", outcome, err)
	}
	if _, err := f.engine.DeleteReservation(ctx, memberC, res.ID); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("outsider delete err = %v", err)
	}

	outcome, err = f.engine.DeleteReservation(ctx, admin, res.ID)
	if err != nil || outcome != OutcomeDeleted {
		t.Fatalf("admin delete = %v, %v", outcome, err)
	}
	if _, err := f.engine.GetReservation(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted reservation readable: %v", err)
	}
	if f.rec.count(memberB.PersonID) != 1 {
		t.Fatalf("remaining participant not told: %+v", f.rec.sent)
	}
	if _, err := f.engine.DeleteReservation(ctx, admin, res.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second admin delete err = %v", err)
	}
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")
	f.create(t, memberA, nil, at(10, 0), at(11, 0))

	f.rec.fail = true
	res, err := f.engine.CreateReservation(ctx, instructor, CreateInput{StationIDs: []uint64{lane.ID}, StartsAt: at(10, 0), EndsAt: at(11, 0)})
	if err != nil {
		t.Fatalf("create with failing notifier: %v", err)
	}
	if len(res.Participants) != 2 {
		t.Fatalf("merge rolled back: %+v", res.Participants)
	}
}

func TestListMonthAndPerson(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	f.create(t, memberA, nil, at(10, 0), at(11, 0))
	f.create(t, memberB, nil, day.AddDate(0, 1, 0), day.AddDate(0, 1, 0).Add(time.Hour))
	// Spans the month boundary.
	f.create(t, memberA, nil, time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC))

	march, err := f.engine.ListMonth(ctx, 2026, time.March)
	if err != nil || len(march) != 2 {
		t.Fatalf("march = %d, %v", len(march), err)
	}
	april, _ := f.engine.ListMonth(ctx, 2026, time.April)
	if len(april) != 2 {
		t.Fatalf("april = %d", len(april))
	}
	if _, err := f.engine.ListMonth(ctx, 2026, 13); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad month err = %v", err)
	}

	mine, err := f.engine.ListForPerson(ctx, memberA.PersonID)
	if err != nil || len(mine) != 2 {
		t.Fatalf("mine = %d, %v", len(mine), err)
	}
}
