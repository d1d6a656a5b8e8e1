package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/c360studio/stagehand/config"
)

func newConfigCommand(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stagehand configuration",
	}
	cmd.AddCommand(newConfigInitCommand(logger))
	return cmd
}

func newConfigInitCommand(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.NewLoader(logger()).EnsureUserConfig(); err != nil {
				return err
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			fmt.Printf("User config at %s\n",
				filepath.Join(home, config.UserConfigDir, config.UserConfigFile))
			return nil
		},
	}
}
