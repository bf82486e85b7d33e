package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/nao1215/imgscrape/internal/model"
)

// WriteImagesCSV writes the image manifest as CSV with a header row.
func WriteImagesCSV(output io.Writer, images []model.ImageRecord) error {
	if images == nil {
		images = []model.ImageRecord{}
	}
	if err := gocsv.Marshal(&images, output); err != nil {
		return fmt.Errorf("write image manifest: %w", err)
	}
	return nil
}

// WriteRunsCSV writes run summaries as CSV with a header row.
func WriteRunsCSV(output io.Writer, runs []*model.RunSummary) error {
	if runs == nil {
		runs = []*model.RunSummary{}
	}
	if err := gocsv.Marshal(&runs, output); err != nil {
		return fmt.Errorf("write runs: %w", err)
	}
	return nil
}
