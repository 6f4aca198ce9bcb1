// Package cmd implements the binventory CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "binventory",
	Short: "binventory - conversational bin inventory assistant",
	Long: `binventory manages a bin-organized inventory through natural
language. Talk to it to add, remove, move, search and list items;
attach photos to have items identified for you.

Running binventory without a subcommand starts the chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
