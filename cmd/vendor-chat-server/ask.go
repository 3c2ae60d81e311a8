package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vendor-chat-backend/internal/config"
	"vendor-chat-backend/internal/logging"
	"vendor-chat-backend/internal/stream"
	"vendor-chat-backend/internal/types"
)

var (
	askVerbose bool
	askNoColor bool
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run one message through the chat pipeline and print the reply",
	Long: `Runs a single user message through moderation, routing and the vendor
flows exactly as the server would, printing the streamed text and any
structured payloads. Handy with VENDOR_CATALOG_FILE for local testing.`,
	Example: `  vendor-chat-server ask "best caterers in Mumbai under 5 lakh"
  vendor-chat-server ask -v "reviews for Royal Caterers"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print segment markers and debug logs")
	askCmd.Flags().BoolVar(&askNoColor, "no-color", false, "disable colored output")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "give up after this long")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askNoColor {
		color.NoColor = true
	}
	cfg := config.Load()
	level := "warn"
	if askVerbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(level, "console", os.Stderr)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire collaborators: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	msg := types.UserMessage(strings.Join(args, " "))
	return a.orchestrator.Handle(ctx, []types.ChatMessage{msg}, stream.NewConsole(cmd.OutOrStdout(), askVerbose))
}
