// Package cmd provides the nebula CLI commands.
//
// Commands:
//   - (root) / chat: interactive conversation with the assistant
//   - signup, login, logout: account and session management
//   - chats: list the current user's conversations
//   - version: build and configuration information
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nebula",
	Short: "Nebula - local-first chat with a Gemini assistant",
	Long: `Nebula is a local-first chat application backed by Gemini.

Conversations and accounts live in local JSON storage; every message you
send is answered by the model in the background.

Running nebula with no arguments starts an interactive chat.`,
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
