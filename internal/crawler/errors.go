package crawler

import "errors"

var (
	// ErrNoRootURL is returned when Run is called without a root URL.
	ErrNoRootURL = errors.New("no root URL")

	// ErrInvalidRootURL is returned for root URLs that are not absolute
	// http or https URLs.
	ErrInvalidRootURL = errors.New("invalid root URL: must be an absolute http or https URL")

	// ErrResolver is returned when the robots resolver cannot be created.
	ErrResolver = errors.New("robots resolver initialization failed")

	// ErrCheckpoint is returned when a stored checkpoint cannot be read.
	ErrCheckpoint = errors.New("checkpoint unreadable")

	// ErrAlreadyRun is returned when Run is called twice on one Crawler.
	ErrAlreadyRun = errors.New("crawler already ran")
)
