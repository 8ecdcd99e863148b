// Package cmd wires the configuration, the conversation store, the
// completion client, the tools and the relay into the parley CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	debugFlag   bool
	jsonLogFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - streaming chat relay with web tools",
	Long: `Parley relays a conversation to a streaming completion endpoint,
live-updating the answer as it arrives. The model may request a web
search or a page load mid-answer; results feed back into the
conversation for follow-up rounds.

Running parley without a subcommand starts an interactive chat.`,
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogFlag, "json-log", false, "log in JSON format")
}
