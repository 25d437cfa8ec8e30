package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
)

var _ adapter.PurchaseEventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes purchase events as JSON, keyed by purchase id so
// every event of one purchase lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	logger.Info().Str("topic", topic).Strs("brokers", brokers).Msg("kafka publisher initialized")
	return &KafkaPublisher{writer: w, topic: topic, log: logger}, nil
}

func buildMessage(ev model.PurchaseEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.PurchaseID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
		Time: ev.Timestamp,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.PurchaseEvent) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Str("purchase_id", ev.PurchaseID).
			Str("type", string(ev.Type)).Msg("publish purchase event failed")
		return fmt.Errorf("kafka: publish %s: %w", ev.Type, err)
	}
	p.log.Debug().Str("purchase_id", ev.PurchaseID).Str("type", string(ev.Type)).Msg("purchase event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.log.Info().Str("topic", p.topic).Msg("closing kafka publisher")
	return p.writer.Close()
}
