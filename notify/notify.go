// Package notify delivers workflow messages and stage changes over NATS.
// Subjects are per workflow so subscribers watch exactly the workflows
// they care about; per-subject delivery preserves publish order.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/stagehand/workflow"
)

// subjectPrefix roots every workflow event subject.
const subjectPrefix = "workflow.events"

// MessageSubject is the subject carrying appended messages for a workflow.
func MessageSubject(workflowID string) string {
	return fmt.Sprintf("%s.%s.message", subjectPrefix, workflowID)
}

// StageSubject is the subject carrying stage and status changes.
func StageSubject(workflowID string) string {
	return fmt.Sprintf("%s.%s.stage", subjectPrefix, workflowID)
}

// EventSubject is the subject carrying hook-emitted events.
func EventSubject(workflowID string) string {
	return fmt.Sprintf("%s.%s.event", subjectPrefix, workflowID)
}

// HookEvent is the payload published for emit_event hook actions.
type HookEvent struct {
	WorkflowID string            `json:"workflow_id"`
	Event      string            `json:"event"`
	Fields     map[string]string `json:"fields,omitempty"`
	EmittedAt  time.Time         `json:"emitted_at"`
}

// Notifier publishes workflow events to NATS. It implements
// workflow.EventSink.
type Notifier struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNotifier creates a notifier over an established connection.
func NewNotifier(nc *nats.Conn, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{nc: nc, logger: logger}
}

// Connect dials NATS with the client name and sane reconnect behaviour.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("stagehand"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// PublishMessage implements workflow.EventSink.
func (n *Notifier) PublishMessage(_ context.Context, workflowID string, msg workflow.Message) error {
	return n.publish(MessageSubject(workflowID), msg)
}

// PublishStage implements workflow.EventSink.
func (n *Notifier) PublishStage(_ context.Context, evt workflow.StageEvent) error {
	return n.publish(StageSubject(evt.WorkflowID), evt)
}

// PublishEvent implements workflow.EventSink.
func (n *Notifier) PublishEvent(_ context.Context, workflowID, event string, fields map[string]string) error {
	return n.publish(EventSubject(workflowID), HookEvent{
		WorkflowID: workflowID,
		Event:      event,
		Fields:     fields,
		EmittedAt:  time.Now(),
	})
}

func (n *Notifier) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// EventKind classifies a received event.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindStage   EventKind = "stage"
	KindHook    EventKind = "event"
)

// Event is one delivered workflow event. Exactly one of Message, Stage and
// Hook is set, according to Kind.
type Event struct {
	Kind       EventKind
	WorkflowID string
	Message    *workflow.Message
	Stage      *workflow.StageEvent
	Hook       *HookEvent
}

// Watch subscribes to every event for a workflow and delivers them in
// publish order until ctx is cancelled. Cancellation unsubscribes and
// closes the returned channel.
func (n *Notifier) Watch(ctx context.Context, workflowID string) (<-chan Event, error) {
	subject := fmt.Sprintf("%s.%s.>", subjectPrefix, workflowID)
	msgs := make(chan *nats.Msg, 128)
	sub, err := n.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				n.logger.Warn("failed to unsubscribe", "subject", subject, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-msgs:
				evt, err := decodeEvent(m)
				if err != nil {
					n.logger.Warn("dropping undecodable event",
						"subject", m.Subject, "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// decodeEvent maps a NATS message back to a typed Event using the subject
// suffix.
func decodeEvent(m *nats.Msg) (Event, error) {
	parts := strings.Split(m.Subject, ".")
	if len(parts) < 4 {
		return Event{}, fmt.Errorf("unexpected subject %q", m.Subject)
	}
	workflowID := parts[2]
	kind := EventKind(parts[3])

	evt := Event{Kind: kind, WorkflowID: workflowID}
	switch kind {
	case KindMessage:
		var msg workflow.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return Event{}, err
		}
		evt.Message = &msg
	case KindStage:
		var stage workflow.StageEvent
		if err := json.Unmarshal(m.Data, &stage); err != nil {
			return Event{}, err
		}
		evt.Stage = &stage
	case KindHook:
		var hook HookEvent
		if err := json.Unmarshal(m.Data, &hook); err != nil {
			return Event{}, err
		}
		evt.Hook = &hook
	default:
		return Event{}, errors.New("unknown event kind " + string(kind))
	}
	return evt, nil
}
