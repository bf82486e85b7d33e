package report

import (
	"io"
	"time"

	"github.com/nao1215/imgscrape/internal/model"
)

// Summary is everything a report shows about a finished crawl.
type Summary struct {
	// Version is the imgscrape version that ran the crawl.
	Version string `json:"version"`

	// Run holds the state and counters of the run.
	Run *model.RunSummary `json:"run"`

	// OutputDir is where the images were written.
	OutputDir string `json:"outputDir"`

	// Checkpoint is the checkpoint left on disk, if the run did not complete.
	Checkpoint string `json:"checkpoint,omitempty"`
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(s *Summary) (int, error)
}

// Format selects a Writer.
type Format string

const (
	// FormatText is the aligned text table.
	FormatText Format = "text"
	// FormatJSON is indented JSON.
	FormatJSON Format = "json"
	// FormatMarkdown is GitHub-flavored Markdown.
	FormatMarkdown Format = "markdown"
)

// NewWriter returns the Writer for format writing to output. Unknown formats
// fall back to text.
func NewWriter(format Format, output io.Writer) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output)
	}
}

// MultiWriter writes to multiple Writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(s *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// formatTime formats t for display, or "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
