package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/timecapsule/pkg/logger"
)

// Event types published when capsules change state.
const (
	CapsuleCreated = "capsule.created"
	CapsuleOpened  = "capsule.opened"
	CapsuleAborted = "capsule.aborted"
	CapsuleDeleted = "capsule.deleted"
)

// Event is the envelope emitted for capsule lifecycle changes.
type Event struct {
	Type       string         `json:"type"`
	CapsuleID  string         `json:"capsule_id"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers lifecycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher returns a publisher logging under the "events" module.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.WithModule("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Debug("capsule event", zap.String("type", event.Type), zap.ByteString("payload", payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.Events = append(r.Events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the event types in publish order.
func (r *Recorder) Types() []string {
	types := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		types = append(types, evt.Type)
	}
	return types
}
