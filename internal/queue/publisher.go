package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/notify"
)

// Broker dial limits.  A failed dial is not retried until redialBackoff has
// passed, so an unreachable broker costs one dialTimeout per window rather
// than one per recipient.
const (
	dialTimeout   = 3 * time.Second
	redialBackoff = 5 * time.Second
)

// ErrBrokerUnavailable is returned while a failed dial is backing off.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// Publisher publishes NotificationEvents to a durable queue.  The broker
// connection is opened lazily and re-opened after a failed publish.
// Messages are marked as persistent.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
	now   func() time.Time
	dial  func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

var _ notify.Sink = (*Publisher)(nil)

// NewPublisher returns a Publisher for the queue at url.  No connection is
// made until the first publish.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = NotificationsQueue
	}
	return &Publisher{url: url, queue: queue, log: log, now: time.Now, dial: dialBroker}
}

func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

// Deliver implements notify.Sink.
func (p *Publisher) Deliver(ctx context.Context, m notify.Message) error {
	return p.Publish(ctx, NewNotificationEvent(m, p.now()))
}

// Publish sends ev.  Errors are logged and returned so the caller can
// choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev NotificationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if errors.Is(err, ErrBrokerUnavailable) {
		return err
	}
	if err != nil {
		p.log.Warn("rabbitmq: connect failed", zap.Error(err), zap.Duration("retry_in", redialBackoff))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID.String(),
		Timestamp:    ev.CreatedAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.String("queue", p.queue), zap.Error(err))
		p.reset()
		return err
	}
	return nil
}

// channel returns an open channel, dialing when needed.  Caller holds mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}

	ch, err := p.open()
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return nil, err
	}
	p.retryAt = time.Time{}
	return ch, nil
}

func (p *Publisher) open() (*amqp.Channel, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
