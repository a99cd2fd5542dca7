package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads NotificationEvents from the queue and appends each one to
// <logDir>/notifications.log.  Redelivered events (same id) are written
// once.
type Consumer struct {
	url    string
	queue  string
	logDir string
	log    *zap.Logger
	seen   *seenSet
}

// NewConsumer returns a Consumer; Run starts it.
func NewConsumer(url, queue, logDir string, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = NotificationsQueue
	}
	if logDir == "" {
		logDir = "logs"
	}
	return &Consumer{url: url, queue: queue, logDir: logDir, log: log, seen: newSeenSet(4096)}
}

// Run connects to RabbitMQ and consumes until ctx is cancelled.  Broken
// connections are re-dialled with exponential backoff capped at 30s.
// Messages that cannot be handled are rejected without requeue so a bad
// payload cannot cause a tight loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dialBroker(c.url)
		if err != nil {
			c.log.Warn("notification-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("notification-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("notification-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("notification-consumer: consuming", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.log.Error("notification-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ID == uuid.Nil {
		return errors.New("event without id")
	}
	if !c.seen.add(ev.ID) {
		c.log.Debug("notification-consumer: duplicate event skipped", zap.String("id", ev.ID.String()))
		return nil
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join(c.logDir, "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(ev.LogLine()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// seenSet remembers the most recent ids, evicting the oldest first.
type seenSet struct {
	mu    sync.Mutex
	limit int
	order []uuid.UUID
	ids   map[uuid.UUID]struct{}
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{limit: limit, ids: make(map[uuid.UUID]struct{}, limit)}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
	s.order = append(s.order, id)
	s.ids[id] = struct{}{}
	return true
}
