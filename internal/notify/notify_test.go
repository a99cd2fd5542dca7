package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository/memstore"
)

type flakySink struct {
	fail map[uint64]bool
	got  []Message
}

func (s *flakySink) Deliver(ctx context.Context, m Message) error {
	if s.fail[m.PersonID] {
		return errors.New("unreachable")
	}
	s.got = append(s.got, m)
	return nil
}

func TestNotifyMany_CountsSuccessesAndDedupes(t *testing.T) {
	sink := &flakySink{fail: map[uint64]bool{2: true}}
	d := NewDispatcher(memstore.New().Reservations(), sink, zap.NewNop())

	n, err := d.NotifyMany(context.Background(), []uint64{1, 2, 3, 1}, "t", "m", SeverityInfo)
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if err == nil {
		t.Fatal("expected joined error for the failed recipient")
	}
	if len(sink.got) != 2 || sink.got[0].PersonID != 1 || sink.got[1].PersonID != 3 {
		t.Fatalf("delivered messages = %+v", sink.got)
	}
}

func TestNotify_PropagatesSinkError(t *testing.T) {
	sink := &flakySink{fail: map[uint64]bool{9: true}}
	d := NewDispatcher(memstore.New().Reservations(), sink, nil)
	if err := d.Notify(context.Background(), 9, "t", "m", SeverityDanger); err == nil {
		t.Fatal("expected error")
	}
}

func TestAffectedFinder_UsesStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	lane := &model.Station{Name: "Lane", DisplayOrder: 1, IsActive: true}
	if err := store.Stations().Create(ctx, lane); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	res := &model.Reservation{
		StartsAt: start, EndsAt: start.Add(time.Hour), Status: model.StatusPending,
		Stations:     []model.Station{*lane},
		Participants: []model.Participant{{PersonID: 5, JoinedAt: start}, {PersonID: 6, JoinedAt: start}},
	}
	if err := store.Reservations().Insert(ctx, res); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(store.Reservations(), &flakySink{}, zap.NewNop())
	d.now = func() time.Time { return start.Add(-time.Hour) }

	byStation, err := d.UsersAffectedByStationClosure(ctx, lane.ID)
	if err != nil || len(byStation) != 2 {
		t.Fatalf("by station = %+v, %v", byStation, err)
	}
	d.now = func() time.Time { return start.Add(2 * time.Hour) }
	byStation, _ = d.UsersAffectedByStationClosure(ctx, lane.ID)
	if len(byStation) != 0 {
		t.Fatalf("past reservation reported: %+v", byStation)
	}

	byWindow, err := d.UsersAffectedByFacilityClosure(ctx, model.NewInterval(start.Add(30*time.Minute), start.Add(3*time.Hour)))
	if err != nil || len(byWindow) != 2 || byWindow[0].ReservationID != res.ID {
		t.Fatalf("by window = %+v, %v", byWindow, err)
	}
}
