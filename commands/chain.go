package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/chain"
)

func newChainCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Manage chains of tasks",
	}
	cmd.AddCommand(
		newChainNewCommand(logger),
		newChainStatusCommand(logger),
		newChainListCommand(logger),
		newChainNotesCommand(logger),
		newChainCoverageCommand(logger),
		newChainCompleteCommand(logger),
		newChainCancelCommand(logger),
	)
	return cmd
}

func newChainNewCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		id            string
		requestID     string
		chainType     string
		dependsOn     string
		skipDesign    bool
		justification string
		fileScope     []string
		designDoc     string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, err := app.Chains.CreateChain(chain.CreateChainInput{
					ID:                      id,
					RequestID:               requestID,
					Type:                    chain.Type(chainType),
					DependsOn:               dependsOn,
					SkipDesign:              skipDesign,
					SkipDesignJustification: justification,
					FileScope:               fileScope,
					DesignDoc:               designDoc,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Created chain %s (%s) for request %s\n", c.ID, c.Type, c.RequestID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Chain id (generated if empty)")
	cmd.Flags().StringVarP(&requestID, "request", "r", "", "Request id this chain belongs to")
	cmd.Flags().StringVar(&chainType, "type", string(chain.TypeDesign), "Chain type (design, implementation)")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "Design chain this implementation chain depends on")
	cmd.Flags().BoolVar(&skipDesign, "skip-design", false, "Skip the design dependency")
	cmd.Flags().StringVar(&justification, "justification", "", "Why design is skipped")
	cmd.Flags().StringSliceVar(&fileScope, "scope", nil, "File scope glob patterns")
	cmd.Flags().StringVar(&designDoc, "design-doc", "", "Design document path this chain maintains")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func newChainStatusCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status <chain-id>",
		Short: "Show a chain, its tasks and its completion checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, err := app.Chains.GetChain(args[0])
				if err != nil {
					return err
				}
				printChain(c)

				result, err := app.Chains.RunValidation(c.ID)
				if err != nil {
					return err
				}
				fmt.Println("Completion checks:")
				for _, check := range result.Checks {
					state := "FAIL"
					if check.Passed {
						state = "ok"
					}
					req := ""
					if check.Required {
						req = " (required)"
					}
					fmt.Printf("  %-28s %-4s%s  %s\n", check.Name, state, req, check.Detail)
				}
				return nil
			})
		},
	}
}

func printChain(c *chain.Chain) {
	fmt.Printf("Chain %s (%s, %s) request=%s\n", c.ID, c.Type, c.Status, c.RequestID)
	if c.DependsOn != "" {
		fmt.Printf("  depends on: %s\n", c.DependsOn)
	}
	if c.SkipDesign {
		fmt.Printf("  design skipped: %s\n", c.SkipDesignJustification)
	}
	if len(c.FileScope) > 0 {
		fmt.Printf("  scope: %v\n", c.FileScope)
	}
	if len(c.Tasks) == 0 {
		fmt.Println("  no tasks")
		return
	}
	fmt.Println("Tasks:")
	for i := range c.Tasks {
		task := &c.Tasks[i]
		fmt.Printf("  %s  %-12s %s\n", task.ID, task.Status, task.Title)
		if task.ReworkCount > 0 {
			fmt.Printf("      reworked %d time(s): %s\n", task.ReworkCount, task.ReworkReason)
		}
	}
}

func newChainListCommand(logger func() *slog.Logger) *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				chains, err := app.Chains.ListChains(requestID)
				if err != nil {
					return err
				}
				if len(chains) == 0 {
					fmt.Println("No chains")
					return nil
				}
				for _, c := range chains {
					done := 0
					for i := range c.Tasks {
						if c.Tasks[i].Status == chain.TaskDone {
							done++
						}
					}
					fmt.Printf("%s  %-14s %-10s request=%s  tasks %d/%d done\n",
						c.ID, c.Type, c.Status, c.RequestID, done, len(c.Tasks))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&requestID, "request", "r", "", "Filter by request id")
	return cmd
}

func newChainNotesCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <chain-id> <notes>",
		Short: "Record the chain's completion notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if _, err := app.Chains.RecordCompletionNotes(args[0], args[1]); err != nil {
					return err
				}
				fmt.Println("Notes recorded")
				return nil
			})
		},
	}
}

func newChainCoverageCommand(logger func() *slog.Logger) *cobra.Command {
	var coverage float64
	cmd := &cobra.Command{
		Use:   "coverage <chain-id>",
		Short: "Record the chain's measured test coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if _, err := app.Chains.RecordCoverage(args[0], coverage); err != nil {
					return err
				}
				fmt.Printf("Coverage recorded: %.1f%%\n", coverage)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&coverage, "percent", 0, "Coverage percentage (0-100)")
	_ = cmd.MarkFlagRequired("percent")
	return cmd
}

func newChainCompleteCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <chain-id>",
		Short: "Re-run completion checks and close the chain if they pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, result, err := app.Chains.CompleteChain(args[0])
				if err != nil {
					return err
				}
				if c.Status == chain.StatusDone {
					fmt.Printf("Chain %s is done\n", c.ID)
					return nil
				}
				fmt.Printf("Chain %s is still %s:\n%s\n", c.ID, c.Status, result.FormatFeedback())
				return nil
			})
		},
	}
}

func newChainCancelCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <chain-id>",
		Short: "Cancel a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, err := app.Chains.CancelChain(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Chain %s cancelled\n", c.ID)
				return nil
			})
		},
	}
}
