// Package memstore is an in-memory repository.Store.  Transactions work on
// a private copy of the whole state and swap it in on commit, so a failed
// transaction leaves no trace.  One transaction runs at a time.
//
// It backs the service tests and the "memory" store driver used for local
// development without MySQL.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
)

type reservationRow struct {
	header       model.Reservation
	stationIDs   []uint64
	participants []model.Participant
	comments     []model.CommentEntry
}

type tokenRow struct {
	userID    uint64
	expiresAt time.Time
	revoked   bool
}

type state struct {
	seq          uint64
	stations     map[uint64]model.Station
	closures     map[uint64]model.Closure
	users        map[uint64]model.User
	reservations map[uint64]*reservationRow
	tokens       map[string]tokenRow
}

func newState() *state {
	return &state{
		stations:     make(map[uint64]model.Station),
		closures:     make(map[uint64]model.Closure),
		users:        make(map[uint64]model.User),
		reservations: make(map[uint64]*reservationRow),
		tokens:       make(map[string]tokenRow),
	}
}

func (s *state) next() uint64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.stations {
		c.stations[k] = v
	}
	for k, v := range s.closures {
		c.closures[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = &reservationRow{
			header:       v.header,
			stationIDs:   append([]uint64(nil), v.stationIDs...),
			participants: append([]model.Participant(nil), v.participants...),
			comments:     append([]model.CommentEntry(nil), v.comments...),
		}
	}
	return c
}

// Store is the in-memory repository.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty Store.
func New() *Store { return &Store{state: newState()} }

var _ repository.Store = (*Store)(nil)

// WithinTx runs fn against a copy of the state and publishes the copy when
// fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, txView{view{tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Stations() repository.Stations         { return stationView{view{store: s}} }
func (s *Store) Closures() repository.Closures         { return closureView{view{store: s}} }
func (s *Store) Reservations() repository.Reservations { return reservationView{view{store: s}} }
func (s *Store) Users() repository.Users               { return userView{view{store: s}} }
func (s *Store) Tokens() repository.Tokens             { return tokenView{view{store: s}} }

// Lock is a no-op: transactions are already serialised.
func (s *Store) Lock(ctx context.Context, guard string) error { return nil }

// view resolves the state to operate on.  Inside a transaction it is the
// private copy; otherwise each call locks the store and uses the live state.
type view struct {
	store *Store
	tx    *state
}

func (v view) begin() (*state, func()) {
	if v.store == nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}

type txView struct{ view }

func (t txView) Stations() repository.Stations         { return stationView{t.view} }
func (t txView) Closures() repository.Closures         { return closureView{t.view} }
func (t txView) Reservations() repository.Reservations { return reservationView{t.view} }
func (t txView) Users() repository.Users               { return userView{t.view} }
func (t txView) Tokens() repository.Tokens             { return tokenView{t.view} }
func (t txView) Lock(ctx context.Context, guard string) error {
	return nil
}

// ---- stations ----

type stationView struct{ view }

func sortStations(list []model.Station) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].DisplayOrder != list[j].DisplayOrder {
			return list[i].DisplayOrder < list[j].DisplayOrder
		}
		return list[i].ID < list[j].ID
	})
}

func (v stationView) ListActive(ctx context.Context) ([]model.Station, error) {
	st, done := v.begin()
	defer done()
	out := make([]model.Station, 0, len(st.stations))
	for _, s := range st.stations {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sortStations(out)
	return out, nil
}

func (v stationView) ListAll(ctx context.Context) ([]model.Station, error) {
	st, done := v.begin()
	defer done()
	out := make([]model.Station, 0, len(st.stations))
	for _, s := range st.stations {
		out = append(out, s)
	}
	sortStations(out)
	return out, nil
}

func (v stationView) GetByID(ctx context.Context, id uint64) (*model.Station, error) {
	st, done := v.begin()
	defer done()
	s, ok := st.stations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (v stationView) LockByIDs(ctx context.Context, ids []uint64) ([]model.Station, error) {
	st, done := v.begin()
	defer done()
	out := make([]model.Station, 0, len(ids))
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if s, ok := st.stations[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, s)
		}
	}
	sortStations(out)
	return out, nil
}

func nameTaken(st *state, name string, except uint64) bool {
	for _, s := range st.stations {
		if s.Name == name && s.ID != except {
			return true
		}
	}
	return false
}

func (v stationView) Create(ctx context.Context, s *model.Station) error {
	st, done := v.begin()
	defer done()
	if nameTaken(st, s.Name, 0) {
		return repository.ErrDuplicate
	}
	s.ID = st.next()
	st.stations[s.ID] = *s
	return nil
}

func (v stationView) update(id uint64, fn func(st *state, s *model.Station) error) error {
	st, done := v.begin()
	defer done()
	s, ok := st.stations[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(st, &s); err != nil {
		return err
	}
	st.stations[id] = s
	return nil
}

func (v stationView) Rename(ctx context.Context, id uint64, name string, at time.Time) error {
	return v.update(id, func(st *state, s *model.Station) error {
		if nameTaken(st, name, id) {
			return repository.ErrDuplicate
		}
		s.Name, s.UpdatedAt = name, at
		return nil
	})
}

func (v stationView) SetActive(ctx context.Context, id uint64, active bool, at time.Time) error {
	return v.update(id, func(_ *state, s *model.Station) error {
		s.IsActive, s.UpdatedAt = active, at
		return nil
	})
}

func (v stationView) SetOrder(ctx context.Context, id uint64, order int, at time.Time) error {
	return v.update(id, func(_ *state, s *model.Station) error {
		s.DisplayOrder, s.UpdatedAt = order, at
		return nil
	})
}

func (v stationView) NextOrder(ctx context.Context) (int, error) {
	st, done := v.begin()
	defer done()
	top := 0
	for _, s := range st.stations {
		if s.DisplayOrder > top {
			top = s.DisplayOrder
		}
	}
	return top + 1, nil
}

// ---- closures ----

type closureView struct{ view }

func (v closureView) ListOverlapping(ctx context.Context, window model.Interval) ([]model.Closure, error) {
	st, done := v.begin()
	defer done()
	out := make([]model.Closure, 0)
	for _, c := range st.closures {
		if c.Window().Overlaps(window) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v closureView) GetByID(ctx context.Context, id uint64) (*model.Closure, error) {
	st, done := v.begin()
	defer done()
	c, ok := st.closures[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (v closureView) Create(ctx context.Context, c *model.Closure) error {
	st, done := v.begin()
	defer done()
	c.ID = st.next()
	st.closures[c.ID] = *c
	return nil
}

func (v closureView) Update(ctx context.Context, c *model.Closure) error {
	st, done := v.begin()
	defer done()
	old, ok := st.closures[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	c.CreatedAt = old.CreatedAt
	st.closures[c.ID] = *c
	return nil
}

func (v closureView) Delete(ctx context.Context, id uint64) error {
	st, done := v.begin()
	defer done()
	if _, ok := st.closures[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.closures, id)
	return nil
}

func (v closureView) AnyOverlapping(ctx context.Context, window model.Interval, excludeID uint64) (bool, error) {
	st, done := v.begin()
	defer done()
	for _, c := range st.closures {
		if c.ID != excludeID && c.Window().Overlaps(window) {
			return true, nil
		}
	}
	return false, nil
}

// ---- users ----

type userView struct{ view }

func (v userView) Create(ctx context.Context, u *model.User) error {
	st, done := v.begin()
	defer done()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range st.users {
		if other.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = st.next()
	st.users[u.ID] = *u
	return nil
}

func (v userView) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	st, done := v.begin()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (v userView) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	st, done := v.begin()
	defer done()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v userView) List(ctx context.Context) ([]model.User, error) {
	st, done := v.begin()
	defer done()
	out := make([]model.User, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v userView) SetActive(ctx context.Context, id uint64, active bool, at time.Time) error {
	st, done := v.begin()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive, u.UpdatedAt = active, at
	st.users[id] = u
	return nil
}

// ---- refresh tokens ----

type tokenView struct{ view }

func (v tokenView) Store(ctx context.Context, userID uint64, tokenHash string, exp, at time.Time) error {
	st, done := v.begin()
	defer done()
	if _, ok := st.tokens[tokenHash]; ok {
		return repository.ErrDuplicate
	}
	st.tokens[tokenHash] = tokenRow{userID: userID, expiresAt: exp}
	return nil
}

func (v tokenView) Validate(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	st, done := v.begin()
	defer done()
	t, ok := st.tokens[tokenHash]
	if !ok || t.revoked || !now.Before(t.expiresAt) {
		return 0, repository.ErrNotFound
	}
	return t.userID, nil
}

func (v tokenView) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error {
	st, done := v.begin()
	defer done()
	t, ok := st.tokens[tokenHash]
	if !ok || t.revoked {
		return repository.ErrNotFound
	}
	t.revoked = true
	st.tokens[tokenHash] = t
	return nil
}

func (v tokenView) RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) error {
	st, done := v.begin()
	defer done()
	for k, t := range st.tokens {
		if t.userID == userID && !t.revoked {
			t.revoked = true
			st.tokens[k] = t
		}
	}
	return nil
}
