package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/nao1215/imgscrape/internal/stats"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorDim     = color.New(color.Faint).SprintFunc()
)

const (
	prefixDone     = "✓"
	prefixWarn     = "⚠"
	prefixError    = "✗"
	prefixProgress = "◆"
	prefixInfo     = "ℹ"
)

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", colorInfo(prefixInfo), fmt.Sprintf(format, args...))
}

func printDone(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", colorSuccess(prefixDone), fmt.Sprintf(format, args...))
}

func printWarn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", colorWarn(prefixWarn), fmt.Sprintf(format, args...))
}

// progressLine renders one status line from a stats snapshot.
func progressLine(s stats.Snapshot) string {
	line := fmt.Sprintf("%s pages %d/%d  images %d found, %s downloaded, %s skipped, %s failed  %s",
		colorInfo(prefixProgress),
		s.PagesCrawled, s.PagesFound,
		s.ImagesFound,
		colorSuccess(s.ImagesDownloaded),
		colorWarn(s.ImagesSkipped),
		colorError(s.ImagesFailed),
		humanize.Bytes(uint64(max(s.BytesDownloaded, 0))))
	if len(s.InFlight) > 0 {
		line += colorDim(fmt.Sprintf("  (%d in flight)", len(s.InFlight)))
	}
	return line
}
