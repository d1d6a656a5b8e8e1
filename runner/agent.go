package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SpawnSubject is the subject agent session spawn requests are published to.
// The agent runtime subscribes here; its results re-enter the system later
// as ordinary workflow messages.
const SpawnSubject = "agent.session.spawn"

// ErrRoleRequired is returned when a spawn request names no role.
var ErrRoleRequired = errors.New("agent role is required")

// SpawnRequest asks the agent runtime to start a session for a role.
type SpawnRequest struct {
	// ID uniquely identifies this spawn request.
	ID string `json:"id"`

	// Role selects the agent behaviour and capability set.
	Role string `json:"role"`

	// WorkflowID is the workflow the session is working for.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Stage is the stage name active when the session was requested.
	Stage string `json:"stage,omitempty"`

	// Context carries free-form key/value context for the session.
	Context map[string]string `json:"context,omitempty"`

	// RequestedAt is when the spawn was requested.
	RequestedAt time.Time `json:"requested_at"`
}

// AgentRuntime starts agent sessions. Spawning is fire-and-forget: the
// call returns once the request is handed off, and the session's effects
// surface later as new workflow messages.
type AgentRuntime interface {
	SpawnSession(ctx context.Context, req SpawnRequest) error
}

// NATSAgentRuntime hands spawn requests to the agent runtime over NATS.
type NATSAgentRuntime struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSAgentRuntime creates a NATS-backed agent runtime client.
func NewNATSAgentRuntime(nc *nats.Conn, logger *slog.Logger) *NATSAgentRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSAgentRuntime{nc: nc, logger: logger}
}

// SpawnSession publishes the request and returns immediately.
func (r *NATSAgentRuntime) SpawnSession(ctx context.Context, req SpawnRequest) error {
	if req.Role == "" {
		return ErrRoleRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal spawn request: %w", err)
	}
	if err := r.nc.Publish(SpawnSubject, data); err != nil {
		return fmt.Errorf("failed to publish spawn request: %w", err)
	}

	r.logger.Debug("agent session requested",
		slog.String("id", req.ID),
		slog.String("role", req.Role),
		slog.String("workflow", req.WorkflowID))
	return nil
}

// NopAgentRuntime accepts every spawn request and does nothing. Used when
// no agent runtime is connected.
type NopAgentRuntime struct{}

// SpawnSession implements AgentRuntime.
func (NopAgentRuntime) SpawnSession(_ context.Context, req SpawnRequest) error {
	if req.Role == "" {
		return ErrRoleRequired
	}
	return nil
}
