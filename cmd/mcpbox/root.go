package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the gateway's single cobra command, per spec §6's CLI
// surface: "-c/--config <path>", "-h/--help", "-v/--version", and a lone
// positional argument accepted as the config path for backward
// compatibility.
func newRootCmd() *cobra.Command {
	var configPath string
	var watch bool

	cmd := &cobra.Command{
		Use:           "mcpbox [config-path]",
		Short:         "MCP gateway: multiplex local MCP servers behind one HTTP endpoint",
		Version:       gatewayVersion,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			return runGateway(cmd.Context(), path, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mcpbox.json", "path to the gateway's configuration file")
	cmd.Flags().BoolVar(&watch, "watch", false, "reconcile mcpServers when the config file changes, without restarting the gateway")
	cmd.SetVersionTemplate("mcpbox {{.Version}}\n")

	return cmd
}
