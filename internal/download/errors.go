package download

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyClaimed means the URL was handled or is in flight. Such
	// candidates are not counted.
	ErrAlreadyClaimed = errors.New("image URL already claimed")

	// ErrSkip marks candidates that are counted as skipped.
	ErrSkip = errors.New("image skipped")

	// ErrFail marks candidates that are counted as failed.
	ErrFail = errors.New("image failed")
)

// Skip reasons.
var (
	ErrFilteredURL      = fmt.Errorf("%w: URL does not match filter", ErrSkip)
	ErrDuplicateContent = fmt.Errorf("%w: duplicate content", ErrSkip)
	ErrTooSmall         = fmt.Errorf("%w: file too small", ErrSkip)
	ErrTooLarge         = fmt.Errorf("%w: file too large", ErrSkip)
	ErrThumbnail        = fmt.Errorf("%w: thumbnail", ErrSkip)
	ErrDimensions       = fmt.Errorf("%w: dimensions out of bounds", ErrSkip)
)

// Failure reasons.
var (
	ErrFetch      = fmt.Errorf("%w: fetch", ErrFail)
	ErrEmptyBody  = fmt.Errorf("%w: empty body", ErrFail)
	ErrWrite      = fmt.Errorf("%w: write", ErrFail)
	ErrConversion = fmt.Errorf("%w: conversion", ErrFail)
)
