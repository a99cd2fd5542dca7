package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/range-booking/internal/model"
)

// Guard names used with Tx.Lock.  Holding a guard serialises writers that
// must see each other's effects before validating an invariant.
const (
	GuardReservations = "reservations"
	GuardClosures     = "closures"
)

// Stations is the persistence contract of the facility registry.
type Stations interface {
	ListActive(ctx context.Context) ([]model.Station, error)
	ListAll(ctx context.Context) ([]model.Station, error)
	GetByID(ctx context.Context, id uint64) (*model.Station, error)
	// LockByIDs returns the stations among ids that exist, taking row locks
	// when running inside a transaction.
	LockByIDs(ctx context.Context, ids []uint64) ([]model.Station, error)
	Create(ctx context.Context, s *model.Station) error
	Rename(ctx context.Context, id uint64, name string, at time.Time) error
	SetActive(ctx context.Context, id uint64, active bool, at time.Time) error
	SetOrder(ctx context.Context, id uint64, order int, at time.Time) error
	NextOrder(ctx context.Context) (int, error)
}

// Closures is the persistence contract of the closure ledger.
type Closures interface {
	ListOverlapping(ctx context.Context, window model.Interval) ([]model.Closure, error)
	GetByID(ctx context.Context, id uint64) (*model.Closure, error)
	Create(ctx context.Context, c *model.Closure) error
	Update(ctx context.Context, c *model.Closure) error
	Delete(ctx context.Context, id uint64) error
	// AnyOverlapping reports whether a closure other than excludeID
	// intersects window.  Pass excludeID=0 to consider all closures.
	AnyOverlapping(ctx context.Context, window model.Interval, excludeID uint64) (bool, error)
}

// Reservations is the persistence contract of the reservation aggregate.
// Every read returns fully hydrated reservations (stations, participants,
// comments).
type Reservations interface {
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	// GetForUpdate row-locks the reservation until the transaction ends and
	// then loads its graph, so the result reflects every commit that came
	// before the lock.
	GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error)
	// LockInRange row-locks every reservation intersecting window, in id
	// order, and returns the locked ids.
	LockInRange(ctx context.Context, window model.Interval) ([]uint64, error)
	ListInRange(ctx context.Context, window model.Interval) ([]model.Reservation, error)
	ListByPerson(ctx context.Context, personID uint64, from time.Time) ([]model.Reservation, error)
	ListPendingOverlapping(ctx context.Context, window model.Interval, excludeID uint64) ([]model.Reservation, error)
	Insert(ctx context.Context, r *model.Reservation) error
	UpdateStatus(ctx context.Context, id uint64, status model.Status, at time.Time) error
	Delete(ctx context.Context, id uint64) error
	AddParticipant(ctx context.Context, reservationID uint64, p model.Participant) error
	RemoveParticipant(ctx context.Context, reservationID, personID uint64) error
	ReplaceStations(ctx context.Context, reservationID uint64, stationIDs []uint64) error
	AppendComment(ctx context.Context, reservationID uint64, c *model.CommentEntry) error
	// StationConflict reports whether any reservation other than excludeID
	// holds one of stationIDs during window.
	StationConflict(ctx context.Context, stationIDs []uint64, window model.Interval, excludeID uint64) (bool, error)
	AffectedByWindow(ctx context.Context, window model.Interval) ([]model.Affected, error)
	AffectedByStation(ctx context.Context, stationID uint64, from time.Time) ([]model.Affected, error)
}

// Users is the persistence contract of the user directory.
type Users interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetActive(ctx context.Context, id uint64, active bool, at time.Time) error
}

// Tokens stores hashed refresh tokens.
type Tokens interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp, at time.Time) error
	Validate(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) error
}

// Tx groups the repositories bound to one unit of work.
type Tx interface {
	Stations() Stations
	Closures() Closures
	Reservations() Reservations
	Users() Users
	Tokens() Tokens
	// Lock acquires the named guard until the surrounding transaction ends.
	Lock(ctx context.Context, guard string) error
}

// Store is a Tx bound to autocommit reads plus a way to open transactions.
type Store interface {
	Tx
	// WithinTx runs fn inside a transaction.  The transaction commits when
	// fn returns nil and rolls back otherwise; fn's error is returned as is.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// DBTX is satisfied by both *sql.DB and *sql.Tx so that the same repository
// code serves autocommit reads and transactional writes.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repos bundles the MySQL repositories over one DBTX.
type repos struct {
	q            DBTX
	stations     *StationRepo
	closures     *ClosureRepo
	reservations *ReservationRepo
	users        *UserRepo
	tokens       *TokenRepo
}

func newRepos(q DBTX) repos {
	return repos{
		q:            q,
		stations:     NewStationRepo(q),
		closures:     NewClosureRepo(q),
		reservations: NewReservationRepo(q),
		users:        NewUserRepo(q),
		tokens:       NewTokenRepo(q),
	}
}

func (r repos) Stations() Stations         { return r.stations }
func (r repos) Closures() Closures         { return r.closures }
func (r repos) Reservations() Reservations { return r.reservations }
func (r repos) Users() Users               { return r.users }
func (r repos) Tokens() Tokens             { return r.tokens }

// Lock takes a row lock on the booking_guards row named guard.  Outside a
// transaction the lock is released immediately, which makes it a no-op.
func (r repos) Lock(ctx context.Context, guard string) error {
	var name string
	err := r.q.QueryRowContext(ctx, `SELECT name FROM booking_guards WHERE name = ? FOR UPDATE`, guard).Scan(&name)
	if err != nil {
		return fmt.Errorf("lock guard %s: %w", guard, err)
	}
	return nil
}

// SQLStore is the MySQL Store.
type SQLStore struct {
	repos
	db *sql.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{repos: newRepos(db), db: db}
}

// DB exposes the underlying pool (health checks, migrations).
func (s *SQLStore) DB() *sql.DB { return s.db }

// WithinTx runs fn in a READ COMMITTED transaction.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// placeholders returns "?,?,…" with n markers and the ids as driver args.
func placeholders(ids []uint64) (string, []any) {
	args := make([]any, 0, len(ids))
	marks := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			marks = append(marks, ',')
		}
		marks = append(marks, '?')
		args = append(args, id)
	}
	return string(marks), args
}
