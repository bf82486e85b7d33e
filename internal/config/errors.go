package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when no root URL is specified.
	ErrNoTarget = errors.New("no target specified: provide a URL to crawl")

	// ErrInvalidMode is returned for an unknown crawl mode.
	ErrInvalidMode = errors.New("invalid mode: must be \"single\" or \"domain\"")

	// ErrInvalidConcurrency is returned when concurrency is outside 1-32.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 32")

	// ErrInvalidMaxDepth is returned when max depth is below -1.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be -1 (unlimited) or non-negative")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the base delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidOrganize is returned for an unknown output organization mode.
	ErrInvalidOrganize = errors.New("invalid organize mode: must be flat, by-page, by-date or mirrored")

	// ErrInvalidConvertFormat is returned for an unsupported conversion target.
	ErrInvalidConvertFormat = errors.New("invalid convert format: must be jpeg, png, gif, bmp or tiff")

	// ErrInvalidQuality is returned when quality is outside 1-100.
	ErrInvalidQuality = errors.New("invalid quality: must be between 1 and 100")

	// ErrInvalidURLFilter is returned when the URL filter is not a valid regular expression.
	ErrInvalidURLFilter = errors.New("invalid URL filter: not a valid regular expression")

	// ErrInvalidSizeBounds is returned for negative or inverted file size bounds.
	ErrInvalidSizeBounds = errors.New("invalid file size bounds: must be non-negative and min <= max")

	// ErrInvalidDimensionBounds is returned for negative or inverted dimension bounds.
	ErrInvalidDimensionBounds = errors.New("invalid dimension bounds: must be non-negative and min <= max")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when a body size limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRate is returned when the request rate is negative.
	ErrInvalidRate = errors.New("invalid requests per second: must be non-negative")
)
