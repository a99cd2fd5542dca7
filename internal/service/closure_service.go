package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/repository"
)

// ClosurePolicy decides what happens to reservations that a new or moved
// closure overlaps.
type ClosurePolicy string

const (
	// PolicyCancel deletes the overlapping reservations in the closure's
	// transaction and notifies their participants.
	PolicyCancel ClosurePolicy = "cancel"
	// PolicyNotify leaves the reservations in place and only notifies.
	PolicyNotify ClosurePolicy = "notify"
)

// ParseClosurePolicy accepts "cancel" and "notify", case-insensitively.
func ParseClosurePolicy(s string) (ClosurePolicy, bool) {
	switch p := ClosurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyCancel, PolicyNotify:
		return p, true
	}
	return "", false
}

// ClosureInput is the editable part of a closure.
type ClosureInput struct {
	StartsAt time.Time
	EndsAt   time.Time
	Reason   string
	Category string
}

// ClosureResult reports a closure write and its effect on reservations.
type ClosureResult struct {
	Closure   model.Closure    `json:"closure"`
	Affected  []model.Affected `json:"affected"`
	Cancelled []uint64         `json:"cancelled_reservation_ids"`
}

// ClosureService is the closure ledger.  Closures are facility-wide and
// never overlap one another.
type ClosureService struct {
	base
	policy ClosurePolicy
}

func NewClosureService(store repository.Store, notifier notify.Notifier, policy ClosurePolicy, log *zap.Logger, opts ...Option) *ClosureService {
	if policy == "" {
		policy = PolicyCancel
	}
	return &ClosureService{base: newBase(store, notifier, log, opts), policy: policy}
}

// Policy returns the configured conflict policy.
func (s *ClosureService) Policy() ClosurePolicy { return s.policy }

// List returns closures overlapping [from, to), ordered by start.
func (s *ClosureService) List(ctx context.Context, from, to time.Time) ([]model.Closure, error) {
	window := model.NewInterval(from, to)
	if !window.Valid() {
		return nil, ErrInvalidInterval
	}
	list, err := s.store.Closures().ListOverlapping(ctx, window)
	return list, storage("list closures", err)
}

func (s *ClosureService) Get(ctx context.Context, id uint64) (*model.Closure, error) {
	c, err := s.store.Closures().GetByID(ctx, id)
	if err != nil {
		return nil, notFound("load closure", err, ErrNotFound)
	}
	return c, nil
}

// IsClosedDuring reports whether any closure intersects [start, end).
func (s *ClosureService) IsClosedDuring(ctx context.Context, start, end time.Time) (bool, error) {
	window := model.NewInterval(start, end)
	if !window.Valid() {
		return false, ErrInvalidInterval
	}
	closed, err := s.store.Closures().AnyOverlapping(ctx, window, 0)
	return closed, storage("check closures", err)
}

func validateClosure(in ClosureInput) (model.Closure, error) {
	window := model.NewInterval(in.StartsAt, in.EndsAt)
	if !window.Valid() {
		return model.Closure{}, ErrInvalidInterval
	}
	category, ok := model.ParseClosureCategory(in.Category)
	if !ok {
		return model.Closure{}, withMessage(ErrInvalidInput, "unknown closure category %q", in.Category)
	}
	return model.Closure{
		StartsAt: window.Start,
		EndsAt:   window.End,
		Reason:   strings.TrimSpace(in.Reason),
		Category: category,
	}, nil
}

// Create records a closure and applies the conflict policy to the
// reservations it overlaps.
func (s *ClosureService) Create(ctx context.Context, in ClosureInput) (*ClosureResult, error) {
	c, err := validateClosure(in)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = s.now()
	return s.write(ctx, &c, func(ctx context.Context, tx repository.Tx) error {
		return storage("create closure", tx.Closures().Create(ctx, &c))
	})
}

// Update replaces the closure's window, reason and category.  The closure
// itself is ignored by the overlap check.
func (s *ClosureService) Update(ctx context.Context, id uint64, in ClosureInput) (*ClosureResult, error) {
	c, err := validateClosure(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return s.write(ctx, &c, func(ctx context.Context, tx repository.Tx) error {
		old, err := tx.Closures().GetByID(ctx, id)
		if err != nil {
			return notFound("load closure", err, ErrNotFound)
		}
		c.CreatedAt = old.CreatedAt
		return notFound("update closure", tx.Closures().Update(ctx, &c), ErrNotFound)
	})
}

// write runs the shared create/update transaction around persist.
func (s *ClosureService) write(ctx context.Context, c *model.Closure, persist func(ctx context.Context, tx repository.Tx) error) (*ClosureResult, error) {
	window := c.Window()
	result := &ClosureResult{}
	var out outbox
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		result.Affected, result.Cancelled = nil, nil
		if err := tx.Lock(ctx, repository.GuardClosures); err != nil {
			return storage("lock closures", err)
		}
		if err := tx.Lock(ctx, repository.GuardReservations); err != nil {
			return storage("lock reservations", err)
		}
		overlap, err := tx.Closures().AnyOverlapping(ctx, window, c.ID)
		if err != nil {
			return storage("check closure overlap", err)
		}
		if overlap {
			return ErrOverlappingClosure
		}
		if err := persist(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.Reservations().LockInRange(ctx, window); err != nil {
			return storage("lock affected reservations", err)
		}
		affected, err := tx.Reservations().AffectedByWindow(ctx, window)
		if err != nil {
			return storage("affected by closure", err)
		}
		result.Affected = affected

		message := fmt.Sprintf("The range is closed %s", formatWindow(window))
		if c.Reason != "" {
			message += " (" + c.Reason + ")"
		}
		if s.policy == PolicyCancel {
			for _, id := range affectedReservationIDs(affected) {
				if err := tx.Reservations().Delete(ctx, id); err != nil {
					return storage("cancel reservation", err)
				}
				result.Cancelled = append(result.Cancelled, id)
			}
			out.add(model.AffectedPersonIDs(affected), notify.SeverityDanger, "Session cancelled",
				message+". Your overlapping session has been cancelled.")
		} else {
			out.add(model.AffectedPersonIDs(affected), notify.SeverityWarning, "Range closure",
				message+". Your session overlaps this closure.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Closure = *c
	s.dispatch(ctx, out)
	s.log.Info("closure saved",
		zap.Uint64("closure_id", c.ID),
		zap.String("policy", string(s.policy)),
		zap.Int("affected", len(result.Affected)),
		zap.Int("cancelled", len(result.Cancelled)))
	return result, nil
}

// Delete removes a closure.
func (s *ClosureService) Delete(ctx context.Context, id uint64) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.GuardClosures); err != nil {
			return storage("lock closures", err)
		}
		return notFound("delete closure", tx.Closures().Delete(ctx, id), ErrNotFound)
	})
}

func affectedReservationIDs(list []model.Affected) []uint64 {
	ids := make([]uint64, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ReservationID)
	}
	return uniqueIDs(ids)
}
