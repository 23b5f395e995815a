package service

import (
	"context"
	"encoding/json"

	"momopay/internal/domain"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every lifecycle event to a topic keyed by transaction id,
// so all events of one payment land on the same partition in order.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 {
		return nil
	}
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, ev domain.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TransactionID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(ev.To)},
			{Key: "client_id", Value: []byte(ev.ClientID)},
		},
		Time: ev.At,
	})
}

func (s *KafkaSink) Close() error {
	if s == nil {
		return nil
	}
	return s.w.Close()
}
