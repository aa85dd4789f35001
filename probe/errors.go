package probe

import (
	"fmt"
	"time"
)

// URLError is a generic page failure: navigation or script evaluation failed.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("unable to process page %s: %v", e.URL, e.Err)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

// HTTPError is returned when page document was served with error status.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("page %s returned HTTP status %d", e.URL, e.Code)
}

// LoadTimeoutError is returned when page did not finish loading in time.
type LoadTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("page %s did not load in %s", e.URL, e.Timeout)
}
