package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/notify"
	"github.com/c360studio/stagehand/workflow"
)

func newWorkflowCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Create and drive workflows",
	}
	cmd.AddCommand(
		newWorkflowNewCommand(logger),
		newWorkflowListCommand(logger),
		newWorkflowShowCommand(logger),
		newWorkflowMessageCommand(logger),
		newWorkflowGateCommand(logger),
		newWorkflowStatusCommand(logger, "pause", workflow.StatusPaused, "Pause an active workflow"),
		newWorkflowStatusCommand(logger, "resume", workflow.StatusActive, "Resume a paused workflow"),
		newWorkflowStatusCommand(logger, "cancel", workflow.StatusCancelled, "Cancel a workflow"),
		newWorkflowDiscardCommand(logger),
		newWorkflowWatchCommand(logger),
	)
	return cmd
}

func newWorkflowNewCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		templateName string
		requestID    string
		message      string
		createdBy    string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a workflow from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				name := templateName
				if name == "" {
					name = app.Cfg.Workflow.DefaultTemplate
				}
				w, err := app.Engine.Create(ctx, requestID, name, createdBy, message)
				if err != nil {
					return err
				}
				fmt.Printf("Created workflow %s from template %s (v%d)\n", w.ID, w.TemplateName, w.TemplateVersion)
				printWorkflowStages(w)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name (default from config)")
	cmd.Flags().StringVarP(&requestID, "request", "r", "", "Request id this workflow fulfils")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Initial message")
	cmd.Flags().StringVar(&createdBy, "by", "", "Author of the initial message")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func newWorkflowListCommand(logger func() *slog.Logger) *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				workflows, err := app.Engine.List(requestID)
				if err != nil {
					return err
				}
				if len(workflows) == 0 {
					fmt.Println("No workflows")
					return nil
				}
				for _, w := range workflows {
					stageName := ""
					if stage := w.Current(); stage != nil {
						stageName = stage.Name
					}
					fmt.Printf("%s  %-10s  stage %d (%s)  request=%s  template=%s\n",
						w.ID, w.Status, w.CurrentStage, stageName, w.RequestID, w.TemplateName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&requestID, "request", "r", "", "Filter by request id")
	return cmd
}

func newWorkflowShowCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a workflow's stages and messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				w, err := app.Engine.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Workflow %s (%s)\n", w.ID, w.Status)
				fmt.Printf("  request:  %s\n", w.RequestID)
				fmt.Printf("  template: %s v%d\n", w.TemplateName, w.TemplateVersion)
				printWorkflowStages(w)
				if len(w.Messages) > 0 {
					fmt.Println("Messages:")
					for _, msg := range w.Messages {
						fmt.Printf("  [%s] %s: %s\n",
							msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.Author, msg.Body)
					}
				}
				return nil
			})
		},
	}
}

func printWorkflowStages(w *workflow.Workflow) {
	fmt.Println("Stages:")
	for i := range w.Stages {
		stage := &w.Stages[i]
		marker := " "
		if i == w.CurrentStage && !w.Status.Terminal() {
			marker = ">"
		}
		state := "pending"
		if stage.GateState.Satisfied {
			state = "satisfied by " + stage.GateState.SatisfiedBy
		}
		fmt.Printf("  %s %d. %-16s gate=%s (%s)\n", marker, i, stage.Name, stage.Gate.Type, state)
	}
}

func newWorkflowMessageCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		author string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "message <workflow-id> <body>",
		Short: "Append a message to a workflow",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				body := strings.Join(args[1:], " ")
				msg, err := app.Engine.AddMessage(ctx, args[0], author, role, body)
				if err != nil {
					return err
				}
				fmt.Printf("Posted %s\n", msg.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "user", "Message author")
	cmd.Flags().StringVar(&role, "role", "", "Author role")
	return cmd
}

func newWorkflowGateCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		stageIndex int
		by         string
	)
	cmd := &cobra.Command{
		Use:   "gate <workflow-id>",
		Short: "Satisfy the current stage's gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				id := args[0]
				index := stageIndex
				if index < 0 {
					w, err := app.Engine.Get(id)
					if err != nil {
						return err
					}
					index = w.CurrentStage
				}
				w, err := app.Engine.SatisfyGate(ctx, id, index, by)
				if err != nil {
					return err
				}
				if w.Status == workflow.StatusCompleted {
					fmt.Printf("Workflow %s completed\n", w.ID)
					return nil
				}
				if stage := w.Current(); stage != nil {
					fmt.Printf("Advanced to stage %d (%s), gate=%s\n",
						w.CurrentStage, stage.Name, stage.Gate.Type)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&stageIndex, "stage", -1, "Stage index to satisfy (default: current)")
	cmd.Flags().StringVar(&by, "by", "", "Who satisfies the gate (required for human approval)")
	return cmd
}

func newWorkflowStatusCommand(logger func() *slog.Logger, use string, target workflow.Status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <workflow-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				w, err := app.Engine.UpdateStatus(ctx, args[0], target)
				if err != nil {
					return err
				}
				fmt.Printf("Workflow %s is now %s\n", w.ID, w.Status)
				return nil
			})
		},
	}
}

func newWorkflowDiscardCommand(logger func() *slog.Logger) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "discard <workflow-id>",
		Short: "Discard a workflow with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				w, err := app.Engine.Discard(ctx, args[0], reason)
				if err != nil {
					return err
				}
				fmt.Printf("Workflow %s discarded\n", w.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the workflow is discarded")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newWorkflowWatchCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <workflow-id>",
		Short: "Stream a workflow's events until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if app.Notifier == nil {
					return watchWorkflowFile(ctx, app, args[0])
				}
				events, err := app.Notifier.Watch(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Watching %s (ctrl-c to stop)\n", args[0])
				for evt := range events {
					printEvent(evt)
				}
				return nil
			})
		},
	}
}

// watchWorkflowFile is the broker-less fallback: it watches the workflow
// document and prints messages and stage changes as the file is rewritten.
func watchWorkflowFile(ctx context.Context, app *App, id string) error {
	last, err := app.Engine.Get(id)
	if err != nil {
		return err
	}

	watcher := notify.NewFileWatcher(app.Cfg.WorkflowsDir(), app.Logger)
	changes, err := watcher.Watch(ctx, id+".json")
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s via file changes (ctrl-c to stop)\n", id)
	for range changes {
		current, err := app.Engine.Get(id)
		if err != nil {
			app.Logger.Warn("failed to re-read workflow", "workflow", id, "error", err)
			continue
		}
		for i := len(last.Messages); i < len(current.Messages); i++ {
			msg := current.Messages[i]
			fmt.Printf("message  %s: %s\n", msg.Author, msg.Body)
		}
		if current.CurrentStage != last.CurrentStage || current.Status != last.Status {
			stageName := ""
			if stage := current.Current(); stage != nil {
				stageName = stage.Name
			}
			fmt.Printf("stage    %d (%s) status=%s\n", current.CurrentStage, stageName, current.Status)
		}
		last = current
	}
	return nil
}

func printEvent(evt notify.Event) {
	switch evt.Kind {
	case notify.KindMessage:
		fmt.Printf("message  %s: %s\n", evt.Message.Author, evt.Message.Body)
	case notify.KindStage:
		fmt.Printf("stage    %d (%s) status=%s\n", evt.Stage.Stage, evt.Stage.StageName, evt.Stage.Status)
	case notify.KindHook:
		fmt.Printf("event    %s %v\n", evt.Hook.Event, evt.Hook.Fields)
	}
}
