// Package database provides SQLite-based crawl history for imgscrape.
//
// The HistoryDB stores:
//   - One row per crawl run with its final state and counters
//   - One row per saved image, including the EXIF camera summary
//
// SQLite is used through modernc.org/sqlite, so the database is a single
// file in the XDG data directory and needs no CGO.
package database
