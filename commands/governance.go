package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/governance"
)

func newGovernanceCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "governance",
		Aliases: []string{"gov"},
		Short:   "Evaluate governance policy",
	}
	cmd.AddCommand(newGovernanceCheckCommand(logger))
	return cmd
}

func newGovernanceCheckCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		role   string
		action string
		path   string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a role may perform an action on a path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if app.Governance == nil {
					return fmt.Errorf("no governance rules configured at %s", app.Cfg.GovernanceFile())
				}
				result, err := app.Governance.Check(role, governance.Action(action), path)
				if err != nil {
					return err
				}
				fmt.Printf("%s", result.Decision)
				if result.Reason != "" {
					fmt.Printf(": %s", result.Reason)
				}
				fmt.Println()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Role id")
	cmd.Flags().StringVar(&action, "action", "", "Action (create, modify, delete)")
	cmd.Flags().StringVar(&path, "path", "", "Path the action targets")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
