package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &fakeWriter{}
	pub := &KafkaPublisher{writer: writer}
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	err := pub.Publish(context.Background(), Event{Type: CapsuleOpened, CapsuleID: "cap-1", UserID: "u-1", OccurredAt: at})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, "cap-1", string(msg.Key))
	require.Equal(t, at, msg.Time)
	require.Equal(t, "type", msg.Headers[0].Key)
	require.Equal(t, CapsuleOpened, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "u-1", decoded.UserID)

	require.NoError(t, pub.Close())
	require.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	pub := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}
	err := pub.Publish(context.Background(), Event{Type: CapsuleDeleted, CapsuleID: "cap-1"})
	require.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "capsules"})
	require.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	pub, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "capsules"})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestRecorderTypes(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Publish(context.Background(), Event{Type: CapsuleCreated}))
	require.NoError(t, rec.Publish(context.Background(), Event{Type: CapsuleAborted}))
	require.Equal(t, []string{CapsuleCreated, CapsuleAborted}, rec.Types())
}
