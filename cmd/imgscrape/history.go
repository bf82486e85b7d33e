package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/database"
	"github.com/nao1215/imgscrape/internal/model"
	"github.com/nao1215/imgscrape/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show past crawl runs and their downloaded images",
		Long: `History lists crawl runs recorded in the history database, newest first.

With --run it lists the images saved by one run instead. --csv writes the
same data as CSV, which for a run is the full image manifest including
dimensions, content hash and EXIF camera data.

Examples:
  # List recent runs
  imgscrape history

  # List runs of one site
  imgscrape history https://example.com/

  # Show the images of a run
  imgscrape history --run 0b6f0c1e-...

  # Export the image manifest of a run
  imgscrape history --run 0b6f0c1e-... --csv images.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringP("run", "r", "", "Show the images saved by this run ID")
	cmd.Flags().String("csv", "", "Write the listing as CSV to this file")
	cmd.Flags().String("data-dir", config.XDGDataDir(), "Directory holding the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	csvPath, err := cmd.Flags().GetString("csv")
	if err != nil {
		return err
	}
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, database.FileName)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		printInfo(cmd.OutOrStdout(), "No crawl history yet (%s)", dbPath)
		return nil
	}

	db, err := database.Open(dataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if runID != "" {
		run, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		images, err := db.ListImages(ctx, runID)
		if err != nil {
			return err
		}
		if csvPath != "" {
			return writeCSVFile(csvPath, func(w io.Writer) error {
				return report.WriteImagesCSV(w, images)
			})
		}
		printInfo(out, "Run %s: %s (%s), %d images", run.ID, run.RootURL, run.State, len(images))
		report.WriteImages(out, images)
		return nil
	}

	var rootURL string
	if len(args) > 0 {
		rootURL = model.NormalizeURL(args[0])
	}
	runs, err := db.ListRuns(ctx, rootURL, limit)
	if err != nil {
		return err
	}
	if csvPath != "" {
		return writeCSVFile(csvPath, func(w io.Writer) error {
			return report.WriteRunsCSV(w, runs)
		})
	}
	if len(runs) == 0 {
		printInfo(out, "No runs recorded")
		return nil
	}
	report.WriteRuns(out, runs)
	return nil
}

// writeCSVFile creates path and fills it with write.
func writeCSVFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return f.Close()
}
