package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/imgscrape/internal/checkpoint"
	"github.com/nao1215/imgscrape/internal/config"
	"github.com/nao1215/imgscrape/internal/model"
)

// NewCheckpointsCmd creates the checkpoints command.
func NewCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List or delete stored crawl checkpoints",
		Long: `Checkpoints lists the crawls that were interrupted and can be resumed.

A checkpoint is written every 10 pages and when a crawl is interrupted. It is
removed when the crawl completes. Deleting a checkpoint makes the next crawl
of that URL start over.

Examples:
  # List resumable crawls
  imgscrape checkpoints

  # Forget the progress of one crawl
  imgscrape checkpoints --delete https://example.com/`,
		Args: cobra.NoArgs,
		RunE: runCheckpointsCmd,
	}

	cmd.Flags().String("delete", "", "Delete the checkpoint of this root URL")
	cmd.Flags().String("data-dir", config.XDGDataDir(), "Directory holding the checkpoints")

	return cmd
}

func runCheckpointsCmd(cmd *cobra.Command, _ []string) error {
	target, err := cmd.Flags().GetString("delete")
	if err != nil {
		return err
	}
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	cfg.DataDir = dataDir
	store := checkpoint.NewFileStore(cfg.CheckpointDir())
	out := cmd.OutOrStdout()

	if target != "" {
		root := model.NormalizeURL(target)
		if _, err := store.Load(root); errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("no checkpoint for %s", root)
		}
		if err := store.Delete(root); err != nil {
			return err
		}
		printDone(out, "Deleted checkpoint for %s", root)
		return nil
	}

	cps, err := store.List()
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		printInfo(out, "No checkpoints")
		return nil
	}

	tbl := table.New("Root URL", "Updated", "Visited", "Pending", "Downloaded").WithWriter(out)
	for _, cp := range cps {
		tbl.AddRow(cp.RootURL, cp.UpdatedAt.Local().Format(time.DateTime),
			len(cp.VisitedURLs), len(cp.PendingTasks), len(cp.DownloadedURLs))
	}
	tbl.Print()
	return nil
}
