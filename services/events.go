package services

import (
	"context"
	"encoding/json"
	"time"

	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// EventPublisher emits domain events after a state change is committed.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent)
}

// OrderEventSender is satisfied by kafka.OrderEventProducer.
type OrderEventSender interface {
	SendOrderEvent(ctx context.Context, event models.OrderEvent) error
}

// DomainEventPublisher fans an event out to SNS and Kafka. Either sink may
// be nil. Failures are logged and never returned.
type DomainEventPublisher struct {
	sns         aws_pkg.SNSPublisher
	snsTopicArn string
	kafka       OrderEventSender
	logger      *zap.Logger
}

func NewDomainEventPublisher(sns aws_pkg.SNSPublisher, snsTopicArn string, kafka OrderEventSender, logger *zap.Logger) *DomainEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainEventPublisher{sns: sns, snsTopicArn: snsTopicArn, kafka: kafka, logger: logger}
}

func (p *DomainEventPublisher) Publish(ctx context.Context, event models.OrderEvent) {
	// the request may already be finished; publishing must not be cut short by it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
	}

	if p.sns != nil && p.snsTopicArn != "" {
		body, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal order event", append(fields, zap.Error(err))...)
			return
		}
		attrs := map[string]string{"event_type": event.EventType}
		if err := p.sns.Publish(ctx, p.snsTopicArn, body, attrs); err != nil {
			p.logger.Warn("SNS publish failed", append(fields, zap.Error(err))...)
		}
	}

	if p.kafka != nil {
		if err := p.kafka.SendOrderEvent(ctx, event); err != nil {
			p.logger.Warn("Kafka publish failed", append(fields, zap.Error(err))...)
		}
	}

	p.logger.Debug("Order event published", fields...)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.OrderEvent) {}

// businessMetrics records CloudWatch business metrics off the request path.
type businessMetrics struct {
	recorder aws_pkg.MetricsRecorder
	logger   *zap.Logger
}

func (m businessMetrics) enabled() bool {
	return m.recorder != nil && m.recorder.IsEnabled()
}

func (m businessMetrics) count(name string, dims map[string]string) {
	if !m.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.recorder.RecordCount(ctx, name, dims); err != nil {
			m.logger.Debug("Failed to record metric", zap.String("metric", name), zap.Error(err))
		}
	}()
}

func (m businessMetrics) value(name string, v float64, dims map[string]string) {
	if !m.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.recorder.RecordValue(ctx, name, v, dims); err != nil {
			m.logger.Debug("Failed to record metric", zap.String("metric", name), zap.Error(err))
		}
	}()
}

func (m businessMetrics) latency(name string, d time.Duration, dims map[string]string) {
	if !m.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.recorder.RecordLatency(ctx, name, d, dims); err != nil {
			m.logger.Debug("Failed to record metric", zap.String("metric", name), zap.Error(err))
		}
	}()
}
