package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rodaine/table"

	"github.com/nao1215/imgscrape/internal/model"
)

// SimpleWriter outputs aligned text tables for terminal display.
type SimpleWriter struct {
	baseWriter
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer) *SimpleWriter {
	return &SimpleWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary as a two-column table.
func (w *SimpleWriter) Write(s *Summary) (int, error) {
	cw := &countingWriter{w: w.output}
	run := s.Run

	if _, err := fmt.Fprintf(cw, "\nimgscrape %s: %s\n\n", run.State, run.RootURL); err != nil {
		return cw.n, err
	}

	tbl := table.New("Property", "Value").WithWriter(cw)
	tbl.AddRow("Run ID", run.ID)
	tbl.AddRow("Mode", run.Mode)
	tbl.AddRow("Resumed", strconv.FormatBool(run.Resumed))
	tbl.AddRow("Duration", formatDuration(run.Duration))
	tbl.AddRow("Pages found", run.PagesFound)
	tbl.AddRow("Pages crawled", run.PagesCrawled)
	tbl.AddRow("Images found", run.ImagesFound)
	tbl.AddRow("Images downloaded", run.ImagesDownloaded)
	tbl.AddRow("Images skipped", run.ImagesSkipped)
	tbl.AddRow("Images failed", run.ImagesFailed)
	tbl.AddRow("Downloaded size", humanize.Bytes(uint64(max(run.BytesDownloaded, 0))))
	tbl.AddRow("Output", s.OutputDir)
	if s.Checkpoint != "" {
		tbl.AddRow("Checkpoint", s.Checkpoint)
	}
	if run.Error != "" {
		tbl.AddRow("Error", run.Error)
	}
	tbl.Print()

	return cw.n, nil
}

// WriteRuns prints past runs as a table, newest first.
func WriteRuns(output io.Writer, runs []*model.RunSummary) {
	tbl := table.New("Run ID", "Started", "State", "Root URL", "Pages", "Downloaded", "Skipped", "Failed", "Size").
		WithWriter(output)
	for _, r := range runs {
		tbl.AddRow(
			r.ID,
			formatTime(r.StartedAt),
			r.State,
			r.RootURL,
			r.PagesCrawled,
			r.ImagesDownloaded,
			r.ImagesSkipped,
			r.ImagesFailed,
			humanize.Bytes(uint64(max(r.BytesDownloaded, 0))),
		)
	}
	tbl.Print()
}

// WriteImages prints the images saved by a run.
func WriteImages(output io.Writer, images []model.ImageRecord) {
	tbl := table.New("Path", "Size", "Dimensions", "Camera", "Source").WithWriter(output)
	for _, img := range images {
		dims := "-"
		if img.Width > 0 && img.Height > 0 {
			dims = fmt.Sprintf("%dx%d", img.Width, img.Height)
		}
		camera := "-"
		if img.CameraMake != "" || img.CameraModel != "" {
			camera = img.CameraMake + " " + img.CameraModel
		}
		tbl.AddRow(img.Path, humanize.Bytes(uint64(max(img.Bytes, 0))), dims, camera, img.URL)
	}
	tbl.Print()
}
