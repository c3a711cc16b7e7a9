package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the scriptbridge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptbridge",
		Short: "ScriptBridge - Lua plugin host for city simulation games",
		Long: `ScriptBridge embeds a Lua interpreter into a city simulation host,
discovers user scripts in the game's Scripts directory, and routes city
lifecycle events, cheats, and messages to them.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
