package notify

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/stagehand/workflow"
)

func newTestNotifier(t *testing.T) *Notifier {
	t.Helper()
	srv, err := StartEmbeddedServer(10 * time.Second)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return NewNotifier(nc, nil)
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event channel closed early")
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestWatchDeliversInPublishOrder(t *testing.T) {
	n := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Watch(ctx, "wf-1")
	require.NoError(t, err)

	require.NoError(t, n.PublishMessage(ctx, "wf-1", workflow.Message{ID: "msg-1", Author: "alice", Body: "first"}))
	require.NoError(t, n.PublishMessage(ctx, "wf-1", workflow.Message{ID: "msg-2", Author: "alice", Body: "second"}))
	require.NoError(t, n.PublishStage(ctx, workflow.StageEvent{WorkflowID: "wf-1", Stage: 1, Status: workflow.StatusActive}))

	first := receive(t, ch)
	require.Equal(t, KindMessage, first.Kind)
	assert.Equal(t, "msg-1", first.Message.ID)

	second := receive(t, ch)
	require.Equal(t, KindMessage, second.Kind)
	assert.Equal(t, "msg-2", second.Message.ID)

	third := receive(t, ch)
	require.Equal(t, KindStage, third.Kind)
	assert.Equal(t, 1, third.Stage.Stage)
	assert.Equal(t, workflow.StatusActive, third.Stage.Status)
}

func TestWatchScopedToOneWorkflow(t *testing.T) {
	n := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Watch(ctx, "wf-1")
	require.NoError(t, err)

	require.NoError(t, n.PublishMessage(ctx, "wf-other", workflow.Message{ID: "msg-x", Body: "noise"}))
	require.NoError(t, n.PublishEvent(ctx, "wf-1", "audit-chain-created", map[string]string{"chain": "chain-1"}))

	evt := receive(t, ch)
	require.Equal(t, KindHook, evt.Kind)
	assert.Equal(t, "audit-chain-created", evt.Hook.Event)
	assert.Equal(t, "chain-1", evt.Hook.Fields["chain"])
}

func TestWatchClosesOnCancel(t *testing.T) {
	n := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := n.Watch(ctx, "wf-1")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
