package critical

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// ThresholdError is returned when not enough pages could be processed or
// when processed pages produced no css. Errors holds the reason for every
// page.
type ThresholdError struct {
	Required  int
	Succeeded int
	Errors    map[string]error
}

func (e *ThresholdError) urls() []string {
	urls := slices.Collect(maps.Keys(e.Errors))
	sort.Sort(natural.StringSlice(urls))
	return urls
}

func (e *ThresholdError) Error() string {
	var sb strings.Builder
	if e.Succeeded >= e.Required {
		fmt.Fprintf(&sb, "no critical css produced by %d successful pages", e.Succeeded)
	} else {
		fmt.Fprintf(&sb, "insufficient successful pages: %d of %d required", e.Succeeded, e.Required)
	}
	for _, u := range e.urls() {
		sb.WriteString("; ")
		sb.WriteString(e.Errors[u].Error())
	}
	return sb.String()
}

// Unwrap returns page errors ordered by url.
func (e *ThresholdError) Unwrap() []error {
	urls := e.urls()
	errs := make([]error, 0, len(urls))
	for _, u := range urls {
		errs = append(errs, e.Errors[u])
	}
	return errs
}

// EmptyResultError is reported for every page when generated CSS is empty.
type EmptyResultError struct {
	URL string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no critical css found for page %s", e.URL)
}

// MinifyError is a warning, unminified css is used instead.
type MinifyError struct {
	Err error
}

func (e *MinifyError) Error() string {
	return fmt.Sprintf("minification failed, using unminified css: %v", e.Err)
}

func (e *MinifyError) Unwrap() error {
	return e.Err
}

// ConfigurationError means generation request could not be run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}
