// Package kafka delivers canteen events straight to the broker. It backs
// the notifier ports when the file storage backend is selected; the
// postgres backend routes events through its outbox instead.
package kafka

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/sseMG/Food-Reservation-sub000/pkg/tracing"
)

type Notifier struct {
	log    *slog.Logger
	writer *kafka.Writer
}

func NewNotifier(log *slog.Logger, brokers []string, topic string) *Notifier {
	return &Notifier{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Emit publishes one event, keyed by the aggregate id so per-aggregate
// ordering survives partitioning. Callers treat failures as fire-and-forget.
func (n *Notifier) Emit(ctx context.Context, eventType, key string, payload []byte) error {
	headers := []kafka.Header{{Key: "event_type", Value: []byte(eventType)}}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
	})
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
