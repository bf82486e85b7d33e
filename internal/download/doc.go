// Package download saves the images found on a page.
//
// A Manager runs every candidate URL through an ordered list of stages:
// URL claim, URL filter, slot acquisition, politeness delay, fetch, content
// hash, size filter, dimension filter, target path and persist. A stage ends
// the run for its candidate by returning an error wrapping ErrSkip or ErrFail,
// which decides the counter the candidate lands in.
//
// Concurrency across the whole crawl is bounded by one weighted semaphore
// sized to the configured concurrency. The URL and content-hash sets claim
// atomically, so a URL is fetched at most once and identical bytes are saved
// at most once per run, including across resumed runs.
package download
