// Package kafka appends settlement events to a Kafka topic for downstream
// consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// Config holds producer parameters.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher implements domain.EventPublisher on a kafka-go Writer. Messages
// are keyed by market id so events for one market land on one partition in
// order.
type Publisher struct {
	writer *kafka.Writer
}

var _ domain.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a Publisher. It does not dial until the first write;
// use EnsureTopic beforehand when the topic may not exist.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishEvent appends one settlement event as JSON.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal %s: %w", ev.EventType(), err)
	}

	msg := kafka.Message{
		Key:   []byte(messageKey(ev)),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.EventType(), err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// messageKey returns the partition key for an event: the market id when the
// event carries one, otherwise the event type.
func messageKey(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.MarketCreatedEvent:
		return strconv.FormatUint(e.MarketID, 10)
	case domain.BetPlacedEvent:
		return strconv.FormatUint(e.MarketID, 10)
	case domain.MarketResolvedEvent:
		return strconv.FormatUint(e.MarketID, 10)
	case domain.MarketCancelledEvent:
		return strconv.FormatUint(e.MarketID, 10)
	case domain.WinningsClaimedEvent:
		return strconv.FormatUint(e.MarketID, 10)
	case domain.RefundClaimedEvent:
		return strconv.FormatUint(e.MarketID, 10)
	default:
		return ev.EventType()
	}
}

// EnsureTopic creates the topic when it does not already exist.
func EnsureTopic(ctx context.Context, brokers []string, topic string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: get controller: %w", err)
	}

	ctrlConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer ctrlConn.Close()

	cfg := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}
	if err := ctrlConn.CreateTopics(cfg); err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("kafka: create topic %s: %w", topic, err)
	}
	return nil
}
