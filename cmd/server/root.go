package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// defaultConfigName is looked up next to the executable.
const defaultConfigName = "Roomify.config"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "roomify",
		Short:         "Roomify floor plan upload server",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.config/.xml or .yaml)")

	configPath := func() (string, error) {
		if configFlag != "" {
			return filepath.Abs(configFlag)
		}
		exePath, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("get executable path: %w", err)
		}
		return filepath.Join(filepath.Dir(exePath), defaultConfigName), nil
	}

	rootCmd.AddCommand(newServeCommand(configPath))
	rootCmd.AddCommand(newConfigCommand(configPath))
	return rootCmd
}
