package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/chain"
)

func newTaskCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Move tasks through their lifecycle",
	}
	cmd.AddCommand(
		newTaskAddCommand(logger),
		newTaskTransitionCommand(logger, "ready", "Move a task from backlog to todo",
			func(app *App, chainID, taskID string) (*chain.Task, error) {
				return app.Chains.ReadyTask(chainID, taskID)
			}),
		newTaskTransitionCommand(logger, "start", "Start a todo task",
			func(app *App, chainID, taskID string) (*chain.Task, error) {
				return app.Chains.StartTask(chainID, taskID)
			}),
		newTaskTransitionCommand(logger, "complete", "Send an in-progress task to review",
			func(app *App, chainID, taskID string) (*chain.Task, error) {
				return app.Chains.CompleteTask(chainID, taskID)
			}),
		newTaskTransitionCommand(logger, "block", "Block a task",
			func(app *App, chainID, taskID string) (*chain.Task, error) {
				return app.Chains.BlockTask(chainID, taskID)
			}),
		newTaskTransitionCommand(logger, "unblock", "Return a blocked task to todo",
			func(app *App, chainID, taskID string) (*chain.Task, error) {
				return app.Chains.UnblockTask(chainID, taskID)
			}),
		newTaskApproveCommand(logger),
		newTaskReworkCommand(logger),
		newTaskNextCommand(logger),
		newTaskListCommand(logger),
		newTaskReorderCommand(logger),
		newTaskDeleteCommand(logger),
	)
	return cmd
}

func newTaskAddCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		title       string
		description string
		ready       bool
		fileScope   []string
		acceptance  []string
	)
	cmd := &cobra.Command{
		Use:   "add <chain-id>",
		Short: "Add a task to a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				task, err := app.Chains.AddTask(args[0], chain.TaskInput{
					Title:       title,
					Description: description,
					FileScope:   fileScope,
					Acceptance:  acceptance,
					Ready:       ready,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Added %s (%s)\n", task.ID, task.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Task title")
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().BoolVar(&ready, "ready", false, "Create in todo instead of backlog")
	cmd.Flags().StringSliceVar(&fileScope, "scope", nil, "File scope glob patterns")
	cmd.Flags().StringArrayVar(&acceptance, "acceptance", nil, "Acceptance criteria (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskTransitionCommand(logger func() *slog.Logger, use, short string, apply func(*App, string, string) (*chain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <chain-id> <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				task, err := apply(app, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", task.ID, task.Status)
				return nil
			})
		},
	}
}

func newTaskApproveCommand(logger func() *slog.Logger) *cobra.Command {
	var acceptanceChecked bool
	cmd := &cobra.Command{
		Use:   "approve <chain-id> <task-id>",
		Short: "Approve an in-review task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				task, result, err := app.Chains.ApproveTask(args[0], args[1], acceptanceChecked)
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", task.ID, task.Status)
				if result != nil {
					if result.RequiredPassed() {
						fmt.Printf("Chain %s completed\n", args[0])
					} else {
						fmt.Printf("Chain completion blocked:\n%s\n", result.FormatFeedback())
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&acceptanceChecked, "acceptance-checked", false, "Confirm the acceptance criteria were verified")
	return cmd
}

func newTaskReworkCommand(logger func() *slog.Logger) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "rework <chain-id> <task-id>",
		Short: "Send an in-review task back to in-progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				task, err := app.Chains.ReworkTask(args[0], args[1], reason)
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s (rework #%d)\n", task.ID, task.Status, task.ReworkCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the task needs rework")
	return cmd
}

func newTaskNextCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "next <chain-id>",
		Short: "Show the first todo task in chain order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				task, err := app.Chains.NextTask(args[0])
				if err != nil {
					return err
				}
				if task == nil {
					fmt.Println("No task is ready")
					return nil
				}
				fmt.Printf("%s  %s\n", task.ID, task.Title)
				return nil
			})
		},
	}
}

func newTaskListCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list <chain-id>",
		Short: "List a chain's tasks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, err := app.Chains.GetChain(args[0])
				if err != nil {
					return err
				}
				printChain(c)
				return nil
			})
		},
	}
}

func newTaskReorderCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <chain-id> <task-id>...",
		Short: "Reorder a chain's tasks (must list every task id)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				c, err := app.Chains.ReorderTasks(args[0], args[1:])
				if err != nil {
					return err
				}
				printChain(c)
				return nil
			})
		},
	}
}

func newTaskDeleteCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chain-id> <task-id>",
		Short: "Delete a task from a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if err := app.Chains.DeleteTask(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[1])
				return nil
			})
		},
	}
}
