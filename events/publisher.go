// Package events publishes domain events (new messages, listens, presence
// changes) to a broker for downstream consumers. Publishing is best-effort: a
// broker outage is logged and never fails the request or relay frame that
// produced the event.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Tunehub/config"
	"Tunehub/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Record is one encoded event.
type Record struct {
	Type  string // routing key on AMQP
	Key   string // partition key on Kafka
	Value []byte
}

// Publisher writes records to a broker.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// NewPublisher picks the broker named by cfg.EventsDriver. With no driver it
// falls back to Kafka when brokers are configured, and otherwise returns nil:
// publishing is off.
func NewPublisher(cfg *config.Config) (Publisher, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.EventsDriver))
	if driver == "" && len(cfg.KafkaBrokers) > 0 {
		driver = "kafka"
	}

	switch driver {
	case "", "none":
		return nil, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka events need KAFKA_BROKERS")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "amqp", "rabbitmq":
		p, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}
}

// KafkaPublisher 使用 segmentio/kafka-go 实现 Publisher
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates an async writer for topic. Records with the same
// key land on the same partition, so per-user order is kept.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("event publish failed",
					logger.Int("count", len(messages)),
					logger.ErrorField(err))
			}
		},
	}}
}

// Publish enqueues the record. With the async writer errors arrive in the
// completion callback instead.
func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(rec.Key),
		Value:   rec.Value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(rec.Type)}},
	})
}

// Close flushes pending records.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// AMQPPublisher publishes to a durable topic exchange on RabbitMQ, routed by
// event type. One channel is shared by all publishers and reopened after the
// broker closes it.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // amqp channels are not safe for concurrent use
	ch *amqp.Channel
}

// NewAMQPPublisher dials url and declares exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch}, nil
}

// channel returns the shared channel, opening a new one if the last was
// closed. Callers hold p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, rec.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"key": rec.Key},
		Body:         rec.Value,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}
