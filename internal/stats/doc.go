// Package stats aggregates crawl progress counters. The crawler and the
// download manager report into a Sink; observers such as the CLI progress
// line read Snapshots without affecting the crawl.
package stats
