// Package checkpoint persists crawl progress so an interrupted run can be
// resumed.
//
// A checkpoint is one JSON document per root URL. FileStore writes it whole
// through a temporary file and a rename, so a reader never sees a partially
// written document.
package checkpoint
