package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestWithinTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Stations().Create(ctx, &model.Station{Name: "Lane 1", DisplayOrder: 1, IsActive: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v, want boom", err)
	}
	all, _ := s.Stations().ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("rolled back station is visible: %+v", all)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Stations().Create(ctx, &model.Station{Name: "Lane 1", DisplayOrder: 1, IsActive: true})
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	all, _ = s.Stations().ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("committed station missing: %+v", all)
	}
}

func TestStations_DuplicateNameAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &model.Station{Name: "A", DisplayOrder: 2, IsActive: true}
	b := &model.Station{Name: "B", DisplayOrder: 1, IsActive: false}
	if err := s.Stations().Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.Stations().Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := s.Stations().Create(ctx, &model.Station{Name: "A"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate create err = %v", err)
	}
	if err := s.Stations().Rename(ctx, b.ID, "A", t0); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate rename err = %v", err)
	}
	if err := s.Stations().Rename(ctx, a.ID, "A", t0); err != nil {
		t.Fatalf("rename to own name: %v", err)
	}

	all, _ := s.Stations().ListAll(ctx)
	if len(all) != 2 || all[0].ID != b.ID || all[1].ID != a.ID {
		t.Fatalf("ListAll order = %+v", all)
	}
	active, _ := s.Stations().ListActive(ctx)
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("ListActive = %+v", active)
	}
	next, _ := s.Stations().NextOrder(ctx)
	if next != 3 {
		t.Fatalf("NextOrder = %d, want 3", next)
	}
}

func TestReservations_Queries(t *testing.T) {
	ctx := context.Background()
	s := New()
	lane := &model.Station{Name: "Lane", DisplayOrder: 1, IsActive: true}
	if err := s.Stations().Create(ctx, lane); err != nil {
		t.Fatal(err)
	}

	pending := &model.Reservation{
		StartsAt: t0, EndsAt: t0.Add(2 * time.Hour), Status: model.StatusPending, CreatedBy: 7,
		Stations:     []model.Station{*lane},
		Participants: []model.Participant{{PersonID: 7, JoinedAt: t0}},
	}
	if err := s.Reservations().Insert(ctx, pending); err != nil {
		t.Fatal(err)
	}
	confirmed := &model.Reservation{
		StartsAt: t0.Add(time.Hour), EndsAt: t0.Add(3 * time.Hour), Status: model.StatusConfirmed, CreatedBy: 8,
		Participants: []model.Participant{{PersonID: 8, JoinedAt: t0, IsInstructor: true}},
	}
	if err := s.Reservations().Insert(ctx, confirmed); err != nil {
		t.Fatal(err)
	}

	window := model.NewInterval(t0.Add(30*time.Minute), t0.Add(90*time.Minute))
	list, _ := s.Reservations().ListPendingOverlapping(ctx, window, 0)
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("ListPendingOverlapping = %+v", list)
	}
	list, _ = s.Reservations().ListPendingOverlapping(ctx, window, pending.ID)
	if len(list) != 0 {
		t.Fatalf("excluded reservation returned: %+v", list)
	}

	touching := model.NewInterval(t0.Add(2*time.Hour), t0.Add(4*time.Hour))
	conflict, _ := s.Reservations().StationConflict(ctx, []uint64{lane.ID}, touching, 0)
	if conflict {
		t.Fatal("touching intervals must not conflict")
	}
	conflict, _ = s.Reservations().StationConflict(ctx, []uint64{lane.ID}, window, 0)
	if !conflict {
		t.Fatal("expected station conflict")
	}

	if err := s.Reservations().AddParticipant(ctx, pending.ID, model.Participant{PersonID: 7, JoinedAt: t0}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("AddParticipant duplicate err = %v", err)
	}
	if err := s.Reservations().RemoveParticipant(ctx, pending.ID, 99); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("RemoveParticipant missing err = %v", err)
	}

	aff, _ := s.Reservations().AffectedByStation(ctx, lane.ID, t0)
	if len(aff) != 1 || aff[0].PersonID != 7 || aff[0].ReservationID != pending.ID {
		t.Fatalf("AffectedByStation = %+v", aff)
	}
	aff, _ = s.Reservations().AffectedByWindow(ctx, window)
	if got := model.AffectedPersonIDs(aff); len(got) != 2 {
		t.Fatalf("AffectedByWindow persons = %v", got)
	}

	ids, _ := s.Reservations().LockInRange(ctx, touching)
	if len(ids) != 1 || ids[0] != confirmed.ID {
		t.Fatalf("LockInRange = %v", ids)
	}
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Reservations().GetForUpdate(ctx, pending.ID)
		if err != nil || len(got.Participants) != 1 {
			t.Fatalf("GetForUpdate = %+v, %v", got, err)
		}
		_, err = tx.Reservations().GetForUpdate(ctx, 404)
		return err
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetForUpdate missing err = %v", err)
	}

	mine, _ := s.Reservations().ListByPerson(ctx, 8, t0)
	if len(mine) != 1 || mine[0].ID != confirmed.ID {
		t.Fatalf("ListByPerson = %+v", mine)
	}
	mine, _ = s.Reservations().ListByPerson(ctx, 8, t0.Add(3*time.Hour))
	if len(mine) != 0 {
		t.Fatalf("ended reservation listed: %+v", mine)
	}
}

func TestReservations_UnknownStationRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := &model.Reservation{
		StartsAt: t0, EndsAt: t0.Add(time.Hour), Status: model.StatusPending,
		Stations:     []model.Station{{ID: 42}},
		Participants: []model.Participant{{PersonID: 1, JoinedAt: t0}},
	}
	if err := s.Reservations().Insert(ctx, res); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Insert err = %v, want ErrNotFound", err)
	}
}

func TestTokens_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tokens := New().Tokens()

	if err := tokens.Store(ctx, 7, "h1", t0.Add(time.Hour), t0); err != nil {
		t.Fatal(err)
	}
	if err := tokens.Store(ctx, 7, "h1", t0.Add(time.Hour), t0); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate hash err = %v", err)
	}
	_ = tokens.Store(ctx, 7, "h2", t0.Add(time.Hour), t0)
	_ = tokens.Store(ctx, 8, "h3", t0.Add(time.Hour), t0)

	if id, err := tokens.Validate(ctx, "h1", t0); err != nil || id != 7 {
		t.Fatalf("Validate = %d %v", id, err)
	}
	if _, err := tokens.Validate(ctx, "h1", t0.Add(time.Hour)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expired token err = %v", err)
	}
	if err := tokens.RevokeByHash(ctx, "h1", t0); err != nil {
		t.Fatal(err)
	}
	if err := tokens.RevokeByHash(ctx, "h1", t0); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second revoke err = %v", err)
	}
	if err := tokens.RevokeAllForUser(ctx, 7, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Validate(ctx, "h2", t0); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("h2 survived RevokeAllForUser: %v", err)
	}
	if id, err := tokens.Validate(ctx, "h3", t0); err != nil || id != 8 {
		t.Fatalf("other user's token: %d %v", id, err)
	}
}
