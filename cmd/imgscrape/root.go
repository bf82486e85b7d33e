package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for imgscrape.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgscrape",
		Short: "Crawl websites and download their images",
		Long: `imgscrape crawls a single page or a whole site breadth-first and downloads
the images it finds.

Downloads are filtered by size, dimensions and URL pattern, deduplicated by
URL and content, and optionally converted to another format. Interrupted
crawls leave a checkpoint and resume where they stopped.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCheckpointsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError(prefixError), err)
		os.Exit(1)
	}
}
