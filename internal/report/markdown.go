package report

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/imgscrape/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(s *Summary) (int, error) {
	cw := &countingWriter{w: w.output}
	md := markdown.NewMarkdown(cw)
	run := s.Run

	md.H1("imgscrape Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root URL", "`" + run.RootURL + "`"},
			{"Run ID", "`" + run.ID + "`"},
			{"Mode", run.Mode},
			{"Started", formatTime(run.StartedAt)},
			{"Duration", formatDuration(run.Duration)},
			{"Status", statusText(run)},
			{"Output", "`" + s.OutputDir + "`"},
		},
	})
	md.PlainText("")

	w.writeCounters(md, run)
	w.writeAlert(md, s)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [imgscrape %s](https://github.com/nao1215/imgscrape)*", s.Version)

	err := md.Build()
	return cw.n, err
}

func statusText(run *model.RunSummary) string {
	switch run.State {
	case "completed":
		return "✅ Completed"
	case "interrupted":
		return "⚠️ Interrupted (resumable)"
	case "failed":
		if run.Error != "" {
			return "❌ Failed - " + run.Error
		}
		return "❌ Failed"
	default:
		return run.State
	}
}

func (w *MarkdownWriter) writeCounters(md *markdown.Markdown, run *model.RunSummary) {
	md.H2("Counters")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Pages found", strconv.FormatInt(run.PagesFound, 10)},
			{"Pages crawled", strconv.FormatInt(run.PagesCrawled, 10)},
			{"Images found", strconv.FormatInt(run.ImagesFound, 10)},
			{"Images downloaded", strconv.FormatInt(run.ImagesDownloaded, 10)},
			{"Images skipped", strconv.FormatInt(run.ImagesSkipped, 10)},
			{"Images failed", strconv.FormatInt(run.ImagesFailed, 10)},
			{"**Downloaded size**", "**" + humanize.Bytes(uint64(max(run.BytesDownloaded, 0))) + "**"},
		},
	})
	md.PlainText("")

	if run.ImagesDownloaded+run.ImagesSkipped+run.ImagesFailed > 0 {
		w.writePieChart(md, run)
	}
}

// writePieChart writes a mermaid pie chart of image outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, run *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Image Outcomes"),
		piechart.WithShowData(true),
	)

	if run.ImagesDownloaded > 0 {
		chart.LabelAndIntValue("Downloaded", uint64(run.ImagesDownloaded))
	}
	if run.ImagesSkipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(run.ImagesSkipped))
	}
	if run.ImagesFailed > 0 {
		chart.LabelAndIntValue("Failed", uint64(run.ImagesFailed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	run := s.Run
	switch {
	case run.State == "failed":
		md.Cautionf("The run failed: %s", run.Error)
	case run.State == "interrupted":
		md.Warningf("The run was interrupted. Run the same command again to resume from `%s`.", s.Checkpoint)
	case run.ImagesFailed > 0:
		md.Importantf("%d image(s) could not be downloaded.", run.ImagesFailed)
	case run.ImagesDownloaded == 0:
		md.Note("No new images were downloaded.")
	default:
		md.Tip("All discovered images were processed.")
	}
	md.PlainText("")
}
