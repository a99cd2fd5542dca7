package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/repository/memstore"
)

// day is the calendar day most tests book on; the fixture clock sits a week
// earlier so every session is in the future.
var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type delivery struct {
	to       uint64
	title    string
	message  string
	severity notify.Severity
}

// recorder is a notify.Notifier that remembers every delivery.
type recorder struct {
	mu   sync.Mutex
	sent []delivery
	fail bool
}

func (r *recorder) Notify(ctx context.Context, personID uint64, title, message string, severity notify.Severity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("delivery failed")
	}
	r.sent = append(r.sent, delivery{personID, title, message, severity})
	return nil
}

func (r *recorder) NotifyMany(ctx context.Context, personIDs []uint64, title, message string, severity notify.Severity) (int, error) {
	n := 0
	var errs []error
	for _, id := range personIDs {
		if err := r.Notify(ctx, id, title, message, severity); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (r *recorder) count(personID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.sent {
		if d.to == personID {
			n++
		}
	}
	return n
}

func (r *recorder) last(personID uint64) (delivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].to == personID {
			return r.sent[i], true
		}
	}
	return delivery{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	store    *memstore.Store
	rec      *recorder
	engine   *BookingEngine
	facility *FacilityService
	closures *ClosureService
	users    *UserService
	sessions *SessionService
	elapsed  time.Duration
}

const (
	testJWTSecret  = "fixture-secret"
	testRefreshTTL = 24 * time.Hour
)

func newFixture(t *testing.T, policy ClosurePolicy) *fixture {
	t.Helper()
	store := memstore.New()
	rec := &recorder{}
	f := &fixture{store: store, rec: rec}
	clock := WithClock(func() time.Time { return day.AddDate(0, 0, -7).Add(f.elapsed) })
	log := zap.NewNop()
	f.engine = NewBookingEngine(store, rec, log, clock)
	f.facility = NewFacilityService(store, rec, log, clock)
	f.closures = NewClosureService(store, rec, policy, log, clock)
	f.users = NewUserService(store, 4, log, clock)
	f.sessions = NewSessionService(store, f.users, testJWTSecret, 15*time.Minute, testRefreshTTL, log, clock)
	return f
}

// advance moves the fixture clock forward.
func (f *fixture) advance(d time.Duration) { f.elapsed += d }

func (f *fixture) station(t *testing.T, name string) model.Station {
	t.Helper()
	s, err := f.facility.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("create station %q: %v", name, err)
	}
	return *s
}

func (f *fixture) create(t *testing.T, actor model.Actor, stations []uint64, start, end time.Time) *model.Reservation {
	t.Helper()
	res, err := f.engine.CreateReservation(context.Background(), actor, CreateInput{StationIDs: stations, StartsAt: start, EndsAt: end})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return res
}

var (
	memberA    = model.ActorFor(1, model.RoleMember)
	memberB    = model.ActorFor(2, model.RoleMember)
	memberC    = model.ActorFor(3, model.RoleMember)
	instructor = model.ActorFor(10, model.RoleInstructor)
	coach      = model.ActorFor(11, model.RoleInstructor)
	admin      = model.ActorFor(99, model.RoleAdmin)
)

// assertStatus checks the cached status against the participants.
func assertStatus(t *testing.T, res *model.Reservation, want model.Status) {
	t.Helper()
	if res.Status != want {
		t.Fatalf("status = %s, want %s", res.Status, want)
	}
	if derived := model.DeriveStatus(res.Participants); derived != res.Status {
		t.Fatalf("status %s disagrees with participants (%s)", res.Status, derived)
	}
}

func ids(ps []model.Participant) map[uint64]bool {
	out := make(map[uint64]bool, len(ps))
	for _, p := range ps {
		out[p.PersonID] = true
	}
	return out
}
