// Package service holds the booking core: the facility registry, the
// closure ledger, the booking engine and the user directory.  Every
// mutating operation runs in one repository transaction; notifications are
// sent only after that transaction commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/repository"
)

// Option configures a service.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.clock = now }
}

// base is embedded by every service.
type base struct {
	store    repository.Store
	notifier notify.Notifier
	log      *zap.Logger
	clock    func() time.Time
}

func newBase(store repository.Store, notifier notify.Notifier, log *zap.Logger, opts []Option) base {
	if log == nil {
		log = zap.NewNop()
	}
	b := base{store: store, notifier: notifier, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// now is truncated to the microsecond, the precision of DATETIME(6), so a
// value read back compares equal to the one written.
func (b *base) now() time.Time { return b.clock().UTC().Truncate(time.Microsecond) }

// notice is a notification queued during a transaction.
type notice struct {
	to       []uint64
	title    string
	message  string
	severity notify.Severity
}

// outbox collects notices until the transaction has committed.
type outbox []notice

func (o *outbox) add(to []uint64, severity notify.Severity, title, message string) {
	if len(to) == 0 {
		return
	}
	*o = append(*o, notice{to: to, title: title, message: message, severity: severity})
}

// dispatch sends the queued notices.  Failures are logged only.
func (b *base) dispatch(ctx context.Context, o outbox) {
	if b.notifier == nil {
		return
	}
	for _, n := range o {
		delivered, err := b.notifier.NotifyMany(ctx, n.to, n.title, n.message, n.severity)
		if err != nil {
			b.log.Warn("notification dispatch incomplete",
				zap.String("title", n.title),
				zap.Int("recipients", len(n.to)),
				zap.Int("delivered", delivered),
				zap.Error(err))
		}
	}
}

// storage wraps an unexpected repository failure.  Business-rule errors
// pass through unchanged.
func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notFound maps repository.ErrNotFound to base, wrapping anything else.
func notFound(op string, err error, base *Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return base
	}
	return storage(op, err)
}

// uniqueIDs drops duplicates, keeping first-seen order.
func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// activeStations locks the stations in ids and checks that every one of
// them exists and is active.
func activeStations(ctx context.Context, tx repository.Tx, ids []uint64) ([]model.Station, error) {
	if len(ids) == 0 {
		return []model.Station{}, nil
	}
	stations, err := tx.Stations().LockByIDs(ctx, ids)
	if err != nil {
		return nil, storage("lock stations", err)
	}
	if len(stations) != len(ids) {
		return nil, ErrInvalidStation
	}
	for _, s := range stations {
		if !s.IsActive {
			return nil, withMessage(ErrInvalidStation, "station %q is inactive", s.Name)
		}
	}
	return stations, nil
}

// displayName returns the user's display name or fallback when unknown.
func displayName(ctx context.Context, tx repository.Tx, personID uint64, fallback string) string {
	u, err := tx.Users().GetByID(ctx, personID)
	if err != nil || u.DisplayName == "" {
		return fallback
	}
	return u.DisplayName
}

func formatWindow(w model.Interval) string {
	const day, clock = "Mon 2 Jan 2006 15:04", "15:04"
	end := w.End.Format(clock)
	if w.End.YearDay() != w.Start.YearDay() || w.End.Year() != w.Start.Year() {
		end = w.End.Format(day)
	}
	return w.Start.Format(day) + " to " + end + " UTC"
}
