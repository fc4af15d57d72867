package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	orders  *kafka.Writer
	cleanup *kafka.Writer
	logger  *zap.Logger
}

func NewKafkaPublisher(brokers []string, ordersTopic, cleanupTopic string, logger *zap.Logger) *KafkaPublisher {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return &KafkaPublisher{
		orders:  newWriter(ordersTopic),
		cleanup: newWriter(cleanupTopic),
		logger:  logger,
	}
}

func (p *KafkaPublisher) OrderCompleted(ctx context.Context, e OrderCompleted) error {
	return p.publish(ctx, p.orders, e.UserID, e.EventID, e)
}

func (p *KafkaPublisher) CartCleanupPending(ctx context.Context, e CartCleanupPending) error {
	return p.publish(ctx, p.cleanup, e.UserID, e.EventID, e)
}

// publish keys messages by user so one user's events stay ordered.
func (p *KafkaPublisher) publish(ctx context.Context, w *kafka.Writer, userID, eventID string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("topic", w.Topic), zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: value}); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", w.Topic),
			zap.String("event_id", eventID),
			zap.Error(err))
		return err
	}
	p.logger.Debug("Event published", zap.String("topic", w.Topic), zap.String("event_id", eventID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.orders.Close(); err != nil {
		return err
	}
	return p.cleanup.Close()
}
