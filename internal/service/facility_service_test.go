package service

import (
	"context"
	"errors"
	"testing"
)

func TestFacility_CreateAndRename(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()

	a := f.station(t, "Lane 1")
	b := f.station(t, "Lane 2")
	if a.DisplayOrder != 1 || b.DisplayOrder != 2 || !a.IsActive {
		t.Fatalf("stations = %+v %+v", a, b)
	}
	if _, err := f.facility.Create(ctx, "Lane 1"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := f.facility.Create(ctx, "lane 1"); err != nil {
		t.Fatalf("names are case-sensitive: %v", err)
	}
	if _, err := f.facility.Create(ctx, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name err = %v", err)
	}

	if _, err := f.facility.Rename(ctx, b.ID, "Lane 1"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("rename clash err = %v", err)
	}
	renamed, err := f.facility.Rename(ctx, b.ID, "Pistol bay")
	if err != nil || renamed.Name != "Pistol bay" {
		t.Fatalf("rename = %+v, %v", renamed, err)
	}
	if _, err := f.facility.Rename(ctx, a.ID, "Lane 1"); err != nil {
		t.Fatalf("rename to own name: %v", err)
	}
	if _, err := f.facility.Rename(ctx, 9999, "Nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rename missing err = %v", err)
	}
}

func TestFacility_DeactivateNotifiesAndBlocksBooking(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	lane := f.station(t, "Lane 1")
	spare := f.station(t, "Lane 2")

	res := f.create(t, memberA, []uint64{lane.ID}, at(10, 0), at(11, 0))
	if _, err := f.engine.AddParticipant(ctx, memberB, res.ID); err != nil {
		t.Fatal(err)
	}
	f.create(t, memberC, []uint64{spare.ID}, at(10, 0), at(11, 0))

	if err := f.facility.Deactivate(ctx, lane.ID); err != nil {
		t.Fatal(err)
	}
	if f.rec.count(memberA.PersonID) != 1 || f.rec.count(memberB.PersonID) != 1 || f.rec.count(memberC.PersonID) != 0 {
		t.Fatalf("notifications = %+v", f.rec.sent)
	}
	// Deactivating twice is a no-op.
	if err := f.facility.Deactivate(ctx, lane.ID); err != nil {
		t.Fatal(err)
	}
	if f.rec.count(memberA.PersonID) != 1 {
		t.Fatal("second deactivation notified again")
	}

	active, _ := f.facility.ListActive(ctx)
	if len(active) != 1 || active[0].ID != spare.ID {
		t.Fatalf("active = %+v", active)
	}
	all, _ := f.facility.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("all = %+v", all)
	}
	if _, err := f.engine.CreateReservation(ctx, memberA, CreateInput{StationIDs: []uint64{lane.ID}, StartsAt: at(13, 0), EndsAt: at(14, 0)}); !errors.Is(err, ErrInvalidStation) {
		t.Fatalf("booking inactive station err = %v", err)
	}

	if err := f.facility.Activate(ctx, lane.ID); err != nil {
		t.Fatal(err)
	}
	f.create(t, memberA, []uint64{lane.ID}, at(13, 0), at(14, 0))
	if err := f.facility.Deactivate(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deactivate missing err = %v", err)
	}
}

func TestFacility_Reorder(t *testing.T) {
	f := newFixture(t, PolicyCancel)
	ctx := context.Background()
	a := f.station(t, "A")
	b := f.station(t, "B")
	c := f.station(t, "C")

	list, err := f.facility.Reorder(ctx, []uint64{c.ID, a.ID, b.ID})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{c.ID, a.ID, b.ID}
	for i, s := range list {
		if s.ID != want[i] || s.DisplayOrder != i+1 {
			t.Fatalf("order[%d] = %+v", i, s)
		}
	}

	if _, err := f.facility.Reorder(ctx, []uint64{a.ID, a.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate ids err = %v", err)
	}
	if _, err := f.facility.Reorder(ctx, []uint64{a.ID, 9999}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
	if _, err := f.facility.Reorder(ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty list err = %v", err)
	}
}
