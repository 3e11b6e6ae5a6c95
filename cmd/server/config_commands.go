package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roomify/backend/internal/config"
)

func newConfigCommand(configPath func() (string, error)) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand(configPath))
	configCmd.AddCommand(newConfigShowCommand(configPath))
	return configCmd
}

func newConfigInitCommand(configPath func() (string, error)) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configPath()
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.DefaultConfig().Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(configPath func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(target)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:      %s\n", target)
			fmt.Fprintf(out, "Listen:      %s\n", cfg.GetServerAddr())
			fmt.Fprintf(out, "Data Dir:    %s\n", cfg.GetDataDir())
			fmt.Fprintf(out, "Store:       %s (%s)\n", cfg.Storage.Driver, cfg.Storage.DatabaseFile)
			fmt.Fprintf(out, "Drop Types:  %v\n", cfg.DropTypes())
			fmt.Fprintf(out, "Auth:        %t\n", cfg.Security.RequireAuth)
			return nil
		},
	}
}
