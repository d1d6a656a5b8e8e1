package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/template"
)

func newTemplateCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"tpl"},
		Short:   "Manage workflow templates and their version history",
	}
	cmd.AddCommand(
		newTemplateListCommand(logger),
		newTemplateShowCommand(logger),
		newTemplateVersionsCommand(logger),
		newTemplateRestoreCommand(logger),
		newTemplateDuplicateCommand(logger),
		newTemplateDeleteCommand(logger),
	)
	return cmd
}

func newTemplateListCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				templates, err := app.Templates.List()
				if err != nil {
					return err
				}
				for _, t := range templates {
					kind := "custom"
					if t.Builtin {
						kind = "builtin"
					}
					fmt.Printf("%-20s v%-3d %-8s %d stages  %s\n",
						t.Name, t.Version, kind, len(t.Stages), t.Description)
				}
				return nil
			})
		},
	}
}

func newTemplateShowCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a template's stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				t, err := app.Templates.Get(args[0])
				if err != nil {
					return err
				}
				printTemplate(t)
				return nil
			})
		},
	}
}

func printTemplate(t *template.WorkflowTemplate) {
	fmt.Printf("Template %s v%d (%s)\n", t.Name, t.Version, t.DisplayName)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	for i := range t.Stages {
		stage := &t.Stages[i]
		fmt.Printf("  %d. %-16s type=%-14s gate=%s", i, stage.Name, stage.Type, stage.Gate.Type)
		if stage.RoleID != "" {
			fmt.Printf(" role=%s", stage.RoleID)
		}
		fmt.Println()
		for _, cmdline := range stage.Gate.Commands {
			fmt.Printf("       verify: %s\n", cmdline)
		}
		for _, action := range stage.Hooks.OnEnter {
			fmt.Printf("       on_enter: %s\n", action.Type)
		}
		for _, action := range stage.Hooks.OnExit {
			fmt.Printf("       on_exit: %s\n", action.Type)
		}
	}
}

func newTemplateVersionsCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <name>",
		Short: "List a template's version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				versions, err := app.Templates.ListVersions(args[0])
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					fmt.Println("No version history (never edited)")
					return nil
				}
				for _, v := range versions {
					fmt.Printf("v%-3d %s  by %s  %s\n",
						v.Version, v.CreatedAt.Format("2006-01-02 15:04"), v.ChangedBy, v.ChangeDescription)
				}
				return nil
			})
		},
	}
}

func newTemplateRestoreCommand(logger func() *slog.Logger) *cobra.Command {
	var (
		by          string
		description string
	)
	cmd := &cobra.Command{
		Use:   "restore <name> <version>",
		Short: "Restore a historical version as a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			return withApp(logger(), func(ctx context.Context, app *App) error {
				restored, err := app.Templates.RestoreVersion(args[0], version, by, description)
				if err != nil {
					return err
				}
				fmt.Printf("Restored %s v%d as new version %d\n", restored.Name, version, restored.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "user", "Who performs the restore")
	cmd.Flags().StringVar(&description, "description", "", "Change description")
	return cmd
}

func newTemplateDuplicateCommand(logger func() *slog.Logger) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "duplicate <name> <new-name>",
		Short: "Copy a template under a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				dup, err := app.Templates.Duplicate(args[0], args[1], by)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s v%d from %s\n", dup.Name, dup.Version, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "user", "Who performs the copy")
	return cmd
}

func newTemplateDeleteCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a custom template (restores the builtin if shadowed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if err := app.Templates.Delete(args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
