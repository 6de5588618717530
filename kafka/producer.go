package kafka

import (
	"context"
	"encoding/json"
	"time"

	"checkout-service/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventProducer writes order and payment events keyed by order id so
// one order's events stay on one partition.
type OrderEventProducer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewOrderEventProducer(brokers []string, topic string, logger *zap.Logger) *OrderEventProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	logger.Info("Kafka producer initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &OrderEventProducer{writer: w, topic: topic, logger: logger}
}

func (p *OrderEventProducer) SendOrderEvent(ctx context.Context, event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.logger.Debug("Sent order event",
		zap.String("topic", p.topic),
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

func (p *OrderEventProducer) Close() error {
	return p.writer.Close()
}
