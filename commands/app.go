// Package commands implements the stagehand CLI surface. Each command
// group lives in its own file and operates through App, which wires the
// stores, the engine and the collaborators from configuration.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/stagehand/chain"
	"github.com/c360studio/stagehand/chain/validation"
	"github.com/c360studio/stagehand/config"
	"github.com/c360studio/stagehand/governance"
	"github.com/c360studio/stagehand/lock"
	"github.com/c360studio/stagehand/notify"
	"github.com/c360studio/stagehand/runner"
	"github.com/c360studio/stagehand/template"
	"github.com/c360studio/stagehand/workflow"
)

// App is the assembled application: configuration, stores, engine and
// collaborators.
type App struct {
	Cfg    *config.Config
	Logger *slog.Logger

	Templates  *template.Store
	Chains     *chain.Store
	Workflows  *workflow.Store
	Engine     *workflow.Engine
	Locks      *lock.Manager
	Governance *governance.Evaluator
	Notifier   *notify.Notifier

	embeddedServer *natsserver.Server
	natsConn       *nats.Conn
}

// NewApp loads configuration and assembles the application. NATS is
// started (embedded) or dialled according to configuration; without
// either, events are dropped and agent spawns are rejected.
func NewApp(logger *slog.Logger) (*App, error) {
	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Cfg: cfg, Logger: logger}

	a.Templates = template.NewStore(cfg.TemplatesDir(), logger)
	checker := validation.NewChecker(cfg.Repo.Path, cfg.Validation)
	a.Chains = chain.NewStore(cfg.ChainsDir(), checker, logger)
	a.Workflows = workflow.NewStore(cfg.WorkflowsDir(), logger)
	a.Locks = lock.NewManager(cfg.LockFile(), cfg.Locks.TTL.Std(), logger)

	if gov, err := governance.LoadEvaluator(cfg.GovernanceFile(), logger); err == nil {
		a.Governance = gov
	} else if !errors.Is(err, governance.ErrRulesNotFound) {
		return nil, err
	} else {
		logger.Debug("no governance rules file; enforcement disabled",
			"path", cfg.GovernanceFile())
	}

	if err := a.startNATS(); err != nil {
		return nil, err
	}

	var (
		events workflow.EventSink  = workflow.NopSink{}
		agents runner.AgentRuntime = runner.NopAgentRuntime{}
	)
	if a.natsConn != nil {
		a.Notifier = notify.NewNotifier(a.natsConn, logger)
		events = a.Notifier
		agents = runner.NewNATSAgentRuntime(a.natsConn, logger)
	}

	run := runner.NewExecRunner(cfg.Repo.Path, logger)
	a.Engine = workflow.NewEngine(a.Workflows, a.Templates, a.Chains, run, agents, events, a.Governance, cfg.Repo.Path, logger)
	return a, nil
}

func (a *App) startNATS() error {
	switch {
	case a.Cfg.NATS.URL != "" && !a.Cfg.NATS.Embedded:
		nc, err := notify.Connect(a.Cfg.NATS.URL)
		if err != nil {
			return err
		}
		a.natsConn = nc

	case a.Cfg.NATS.Embedded:
		srv, err := notify.StartEmbeddedServer(10 * time.Second)
		if err != nil {
			return err
		}
		a.embeddedServer = srv
		nc, err := notify.Connect(srv.ClientURL())
		if err != nil {
			srv.Shutdown()
			return err
		}
		a.natsConn = nc
	}
	return nil
}

// Close releases the NATS resources.
func (a *App) Close() {
	if a.natsConn != nil {
		// Let queued publishes leave before tearing down.
		if err := a.natsConn.Flush(); err != nil {
			a.Logger.Warn("failed to flush NATS connection", "error", err)
		}
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
	}
}

// NewLogger builds the process logger at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// withApp builds the App for a command invocation and tears it down after.
func withApp(logger *slog.Logger, fn func(ctx context.Context, app *App) error) error {
	app, err := NewApp(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Close()
	return fn(context.Background(), app)
}
