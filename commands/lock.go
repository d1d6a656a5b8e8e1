package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newLockCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Manage advisory file-scope locks",
	}
	cmd.AddCommand(
		newLockAcquireCommand(logger),
		newLockReleaseCommand(logger),
		newLockStatusCommand(logger),
	)
	return cmd
}

func newLockAcquireCommand(logger func() *slog.Logger) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "acquire <chain-id> <pattern>...",
		Short: "Acquire file patterns for a chain",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				held, err := app.Locks.Acquire(args[0], agent, args[1:])
				if err != nil {
					return err
				}
				fmt.Printf("Locked %v for %s until %s\n",
					held.Files, held.ChainID, held.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "Agent holding the lock")
	return cmd
}

func newLockReleaseCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "release <chain-id>",
		Short: "Release a chain's lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				if err := app.Locks.Release(args[0]); err != nil {
					return err
				}
				fmt.Printf("Released %s\n", args[0])
				return nil
			})
		},
	}
}

func newLockStatusCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List all locks, including expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(logger(), func(ctx context.Context, app *App) error {
				locks, err := app.Locks.Status()
				if err != nil {
					return err
				}
				if len(locks) == 0 {
					fmt.Println("No locks held")
					return nil
				}
				now := time.Now()
				for _, l := range locks {
					state := "live"
					if l.Expired(now) {
						state = "expired"
					}
					fmt.Printf("%s  %-7s agent=%s  expires=%s  %v\n",
						l.ChainID, state, l.Agent, l.ExpiresAt.Format(time.RFC3339), l.Files)
				}
				return nil
			})
		},
	}
}
