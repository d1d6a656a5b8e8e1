package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the stagehand command tree.
func NewRootCommand(version, buildTime string) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "stagehand",
		Short: "Human-gated workflow orchestration",
		Long: `Stagehand coordinates template-driven workflows over file-backed state.

Workflows advance through typed stage gates (auto, human approval, chain
completion, verification commands) with hooks on every transition. Work
is organized into chains of tasks with completion validation, advisory
file-scope locks keep parallel chains off each other's files, and a
governance policy gates file mutations per role.

Events are published over NATS (embedded by default) so agents and
watchers see messages and stage changes as they happen.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	logger := func() *slog.Logger { return NewLogger(logLevel) }

	cmd.AddCommand(
		newWorkflowCommand(logger),
		newTemplateCommand(logger),
		newChainCommand(logger),
		newTaskCommand(logger),
		newLockCommand(logger),
		newGovernanceCommand(logger),
		newConfigCommand(logger),
		newServeCommand(logger),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stagehand version %s (build: %s)\n", version, buildTime)
		},
	})

	return cmd
}
