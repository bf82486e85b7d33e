// Package crawler drives a crawl from a root URL.
//
// # Architecture
//
// The Crawler owns the breadth-first frontier, the visited set and the page
// bounds. For each page it asks the robots resolver for permission, fetches
// the markup, hands the extracted image candidates to the download manager
// and waits for the whole batch before moving on, then enqueues same-host
// links one level deeper. Page traversal is sequential; only the images of
// the current page are downloaded in parallel.
//
// # States
//
// A run moves through Idle, Seeding and Crawling and ends in Completed,
// Interrupted or Failed. Completed deletes the checkpoint. Interrupted
// (context cancelled) and Failed leave it on disk so the next run with the
// same root URL resumes where this one stopped.
//
// # Usage
//
//	c, err := crawler.New(cfg, crawler.Dependencies{Store: store})
//	res, err := c.Run(ctx, "https://example.com/")
package crawler
