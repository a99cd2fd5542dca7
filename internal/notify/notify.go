// Package notify defines the notification contract the booking core
// depends on and a Dispatcher that implements it over the reservation
// store and a pluggable delivery Sink.
//
// Delivery is best effort.  Callers dispatch after their transaction has
// committed and log failures instead of returning them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
)

// Severity tags a notification for rendering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Message is one notification addressed to one person.
type Message struct {
	PersonID uint64
	Title    string
	Body     string
	Severity Severity
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, personID uint64, title, message string, severity Severity) error
	// NotifyMany delivers to each distinct person, continuing past
	// individual failures.  It returns how many deliveries succeeded and
	// the joined failures, if any.  It never retries.
	NotifyMany(ctx context.Context, personIDs []uint64, title, message string, severity Severity) (int, error)
}

// AffectedFinder lists participants touched by a loss of availability.
type AffectedFinder interface {
	UsersAffectedByStationClosure(ctx context.Context, stationID uint64) ([]model.Affected, error)
	UsersAffectedByFacilityClosure(ctx context.Context, window model.Interval) ([]model.Affected, error)
}

// Sink performs the actual delivery of one message.
type Sink interface {
	Deliver(ctx context.Context, m Message) error
}

// Dispatcher implements Notifier and AffectedFinder.
type Dispatcher struct {
	reservations repository.Reservations
	sink         Sink
	log          *zap.Logger
	now          func() time.Time
}

var (
	_ Notifier       = (*Dispatcher)(nil)
	_ AffectedFinder = (*Dispatcher)(nil)
)

// NewDispatcher wires a Dispatcher.  reservations should be the autocommit
// repository (Store.Reservations()).
func NewDispatcher(reservations repository.Reservations, sink Sink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reservations: reservations, sink: sink, log: log, now: time.Now}
}

func (d *Dispatcher) Notify(ctx context.Context, personID uint64, title, message string, severity Severity) error {
	m := Message{PersonID: personID, Title: title, Body: message, Severity: severity}
	if err := d.sink.Deliver(ctx, m); err != nil {
		return fmt.Errorf("notify person %d: %w", personID, err)
	}
	return nil
}

func (d *Dispatcher) NotifyMany(ctx context.Context, personIDs []uint64, title, message string, severity Severity) (int, error) {
	delivered := 0
	var errs []error
	for _, id := range dedupe(personIDs) {
		if err := d.Notify(ctx, id, title, message, severity); err != nil {
			d.log.Warn("notification delivery failed", zap.Uint64("person_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// UsersAffectedByStationClosure lists participants of reservations on the
// station that have not ended yet.
func (d *Dispatcher) UsersAffectedByStationClosure(ctx context.Context, stationID uint64) ([]model.Affected, error) {
	list, err := d.reservations.AffectedByStation(ctx, stationID, d.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("affected by station %d: %w", stationID, err)
	}
	return list, nil
}

// UsersAffectedByFacilityClosure lists participants of reservations that
// intersect window.
func (d *Dispatcher) UsersAffectedByFacilityClosure(ctx context.Context, window model.Interval) ([]model.Affected, error) {
	list, err := d.reservations.AffectedByWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("affected by window: %w", err)
	}
	return list, nil
}

func dedupe(ids []uint64) []uint64 {
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

// LogSink writes notifications to the structured log.  It is the sink used
// when no message broker is configured.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a LogSink writing to log.
func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Deliver(ctx context.Context, m Message) error {
	s.log.Info("notification",
		zap.Uint64("person_id", m.PersonID),
		zap.String("title", m.Title),
		zap.String("message", m.Body),
		zap.String("severity", string(m.Severity)),
	)
	return nil
}
