// README: Kafka-backed ride event publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewKafkaPublisher returns a publisher backed by an async writer: Publish
// only enqueues, and delivery failures are logged from the completion callback.
func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	k := &KafkaPublisher{timeout: 2 * time.Second, log: log}
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		WriteTimeout:           k.timeout,
		Completion:             k.completed,
	}
	return k
}

func (k *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil || k.log == nil {
		return
	}
	for _, m := range msgs {
		k.log.WithError(err).WithField("ride_id", string(m.Key)).Warn("ride event delivery failed")
	}
}

// Publish keys messages by ride id so one ride's events stay ordered in a partition.
func (k *KafkaPublisher) Publish(ctx context.Context, e RideEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ride event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RideID),
		Value: b,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
