package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRateLimited matches a StatusError whose status is 429.
var ErrRateLimited = errors.New("rate limited")

// ErrBodyTooLarge is returned when an image body exceeds the size limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrRateLimited) match 429 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}
