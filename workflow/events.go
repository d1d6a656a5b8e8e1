package workflow

import (
	"context"
	"time"
)

// StageEvent describes a stage or status change on a workflow.
type StageEvent struct {
	// WorkflowID is the workflow the event belongs to.
	WorkflowID string `json:"workflow_id"`

	// RequestID is the request the workflow fulfils.
	RequestID string `json:"request_id,omitempty"`

	// Stage is the current stage index after the change.
	Stage int `json:"stage"`

	// StageName names that stage.
	StageName string `json:"stage_name,omitempty"`

	// Status is the workflow status after the change.
	Status Status `json:"status"`

	// OccurredAt is when the change happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSink receives workflow messages and stage changes for delivery to
// subscribers. Delivery is at-least-once; publish order per workflow
// matches append order.
type EventSink interface {
	// PublishMessage delivers one appended message.
	PublishMessage(ctx context.Context, workflowID string, msg Message) error

	// PublishStage delivers a stage or status change.
	PublishStage(ctx context.Context, evt StageEvent) error

	// PublishEvent delivers a named hook-emitted event with free-form
	// fields.
	PublishEvent(ctx context.Context, workflowID, event string, fields map[string]string) error
}

// NopSink discards everything. Used when no notifier is configured.
type NopSink struct{}

func (NopSink) PublishMessage(context.Context, string, Message) error { return nil }

func (NopSink) PublishStage(context.Context, StageEvent) error { return nil }

func (NopSink) PublishEvent(context.Context, string, string, map[string]string) error { return nil }
