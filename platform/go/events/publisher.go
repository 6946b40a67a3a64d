package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/folio-erp/folio/platform/go/persistence"
)

// AuditEvent is the message body published for every audit entry.
type AuditEvent struct {
	EventID    string         `json:"event_id"`
	TenantID   string         `json:"tenant_id"`
	Action     string         `json:"action"`
	ISBNID     *string        `json:"isbn_id,omitempty"`
	ISBN       *string        `json:"isbn,omitempty"`
	TitleID    *string        `json:"title_id,omitempty"`
	ActorID    *string        `json:"actor_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditEvent maps a persisted audit entry onto the wire shape.
func NewAuditEvent(entry persistence.AuditEntry) AuditEvent {
	ev := AuditEvent{
		EventID:    entry.AuditID.String(),
		TenantID:   entry.TenantID.String(),
		Action:     entry.Action,
		ISBN:       entry.ISBNValue,
		ActorID:    entry.ActorID,
		RequestID:  entry.RequestID,
		Details:    entry.Details,
		OccurredAt: entry.OccurredAt,
	}
	if entry.ISBNID != nil {
		s := entry.ISBNID.String()
		ev.ISBNID = &s
	}
	if entry.TitleID != nil {
		s := entry.TitleID.String()
		ev.TitleID = &s
	}
	return ev
}

// channel is the subset of *amqp.Channel used by the publisher.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher fans audit events out on a durable topic exchange. The routing key is the action.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

// NewRabbitPublisher dials amqpURL and declares the exchange.
func NewRabbitPublisher(amqpURL, exchange string) (*RabbitPublisher, error) {
	if strings.TrimSpace(amqpURL) == "" {
		return nil, errors.New("amqp url is required")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	pub, err := newRabbitPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	pub.conn = conn
	return pub, nil
}

func newRabbitPublisher(ch channel, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = "folio.isbn.audit"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitPublisher{channel: ch, exchange: exchange}, nil
}

// PublishAudit sends entry as a persistent JSON message.
func (p *RabbitPublisher) PublishAudit(ctx context.Context, entry persistence.AuditEntry) error {
	body, err := json.Marshal(NewAuditEvent(entry))
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		entry.Action,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    entry.AuditID.String(),
			Body:         body,
			Timestamp:    entry.OccurredAt,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() {
	_ = p.channel.Close()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
