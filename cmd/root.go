// Package cmd wires the gateway's CLI. Running chatgate without a
// subcommand starts the server.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatgate",
	Short: "Local chat gateway for Ollama-served models",
	Long: `chatgate routes chat messages to locally served Ollama models,
streams responses back token by token, and keeps conversations as
JSON records on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
