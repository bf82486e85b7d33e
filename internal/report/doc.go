// Package report renders crawl summaries and history listings.
//
// This package contains writers for different output formats:
//   - SimpleWriter: aligned text tables for terminal display
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: Markdown for sharing a run summary
//
// Writers implement the Writer interface so the CLI can pick one by flag.
// The image manifest export is written as CSV.
package report
