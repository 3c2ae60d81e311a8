package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vendor-chat-server",
	Short: "Wedding vendor chat assistant",
	Long: `Answers wedding-planning chat turns: vendor search, guides, vendor details
and reviews from the vendor directory, with a general assistant for
everything else. Configuration is read from the environment and .env.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
