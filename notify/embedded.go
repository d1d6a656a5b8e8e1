package notify

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedServer runs an in-process NATS server on a random port.
// Used when no external broker is configured, and by tests. The caller
// shuts it down.
func StartEmbeddedServer(timeout time.Duration) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(timeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", timeout)
	}
	return srv, nil
}
