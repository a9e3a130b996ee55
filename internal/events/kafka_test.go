package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs    []kafka.Message
	ctxErrs []error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	w.ctxErrs = append(w.ctxErrs, ctx.Err())
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByRide(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), RideEvent{
		Type:   TypeRideAccepted,
		RideID: "ride-1",
		From:   "REQUESTED",
		To:     "ACCEPTED",
		At:     at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ride-1", string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, TypeRideAccepted, string(msg.Headers[0].Value))

	var got RideEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "ACCEPTED", got.To)
	assert.True(t, got.At.Equal(at))
}

func TestKafkaPublisher_IgnoresCallerCancellation(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Publish(ctx, RideEvent{Type: TypeRideCompleted, RideID: "ride-2", At: time.Now()}))
	require.Len(t, w.msgs, 1)
	assert.NoError(t, w.ctxErrs[0])
}

func TestKafkaPublisher_LogsFailedDeliveries(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := &KafkaPublisher{log: log}

	p.completed([]kafka.Message{{Key: []byte("ride-3")}}, nil)
	assert.Empty(t, hook.AllEntries())

	p.completed([]kafka.Message{{Key: []byte("ride-3")}, {Key: []byte("ride-4")}}, errors.New("broker down"))
	require.Len(t, hook.AllEntries(), 2)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "ride-4", entry.Data["ride_id"])
}
