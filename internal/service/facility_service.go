package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/notify"
	"github.com/iliyamo/range-booking/internal/repository"
)

// FacilityService manages the station registry.  Stations are never
// deleted; deactivation hides them from booking.
type FacilityService struct {
	base
}

func NewFacilityService(store repository.Store, notifier notify.Notifier, log *zap.Logger, opts ...Option) *FacilityService {
	return &FacilityService{base: newBase(store, notifier, log, opts)}
}

// ListActive returns active stations by display order.
func (s *FacilityService) ListActive(ctx context.Context) ([]model.Station, error) {
	list, err := s.store.Stations().ListActive(ctx)
	return list, storage("list active stations", err)
}

// ListAll returns every station, including inactive ones.
func (s *FacilityService) ListAll(ctx context.Context) ([]model.Station, error) {
	list, err := s.store.Stations().ListAll(ctx)
	return list, storage("list stations", err)
}

func (s *FacilityService) Get(ctx context.Context, id uint64) (*model.Station, error) {
	st, err := s.store.Stations().GetByID(ctx, id)
	if err != nil {
		return nil, notFound("load station", err, ErrNotFound)
	}
	return st, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", withMessage(ErrInvalidInput, "station name must not be empty")
	}
	return name, nil
}

// Create adds an active station at the end of the display order.
func (s *FacilityService) Create(ctx context.Context, name string) (*model.Station, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	now := s.now()
	st := &model.Station{Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		next, err := tx.Stations().NextOrder(ctx)
		if err != nil {
			return storage("next display order", err)
		}
		st.DisplayOrder = next
		if err := tx.Stations().Create(ctx, st); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateName
			}
			return storage("create station", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Rename changes a station's name; names stay unique, case-sensitively.
func (s *FacilityService) Rename(ctx context.Context, id uint64, name string) (*model.Station, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	var st *model.Station
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Stations().Rename(ctx, id, name, s.now()); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateName
			}
			return notFound("rename station", err, ErrNotFound)
		}
		st, err = tx.Stations().GetByID(ctx, id)
		return storage("reload station", err)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Deactivate soft-deletes the station.  Participants of reservations on the
// station that have not ended yet are told about it.
func (s *FacilityService) Deactivate(ctx context.Context, id uint64) error {
	var out outbox
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		st, err := tx.Stations().GetByID(ctx, id)
		if err != nil {
			return notFound("load station", err, ErrNotFound)
		}
		if !st.IsActive {
			return nil
		}
		now := s.now()
		if err := tx.Stations().SetActive(ctx, id, false, now); err != nil {
			return storage("deactivate station", err)
		}
		affected, err := tx.Reservations().AffectedByStation(ctx, id, now)
		if err != nil {
			return storage("affected by station", err)
		}
		out.add(model.AffectedPersonIDs(affected), notify.SeverityWarning, "Station unavailable",
			fmt.Sprintf("Station %q has been taken out of service. Please check your upcoming sessions.", st.Name))
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, out)
	s.log.Info("station deactivated", zap.Uint64("station_id", id))
	return nil
}

// Activate puts a deactivated station back into service.
func (s *FacilityService) Activate(ctx context.Context, id uint64) error {
	err := s.store.Stations().SetActive(ctx, id, true, s.now())
	return notFound("activate station", err, ErrNotFound)
}

// Reorder assigns display orders 1..n following ids.  ids must name existing
// stations without repeats.
func (s *FacilityService) Reorder(ctx context.Context, ids []uint64) ([]model.Station, error) {
	if len(ids) == 0 {
		return nil, withMessage(ErrInvalidInput, "station order must not be empty")
	}
	if len(uniqueIDs(ids)) != len(ids) {
		return nil, withMessage(ErrInvalidInput, "station order contains duplicates")
	}
	var list []model.Station
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		found, err := tx.Stations().LockByIDs(ctx, ids)
		if err != nil {
			return storage("lock stations", err)
		}
		if len(found) != len(ids) {
			return withMessage(ErrNotFound, "station order names an unknown station")
		}
		now := s.now()
		for i, id := range ids {
			if err := tx.Stations().SetOrder(ctx, id, i+1, now); err != nil {
				return notFound("set station order", err, ErrNotFound)
			}
		}
		list, err = tx.Stations().ListAll(ctx)
		return storage("list stations", err)
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
