// Package probe defines page probing contract used to find out which CSS a
// page includes and which selectors match its content.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

func (v Viewport) String() string {
	return strconv.Itoa(v.Width) + "x" + strconv.Itoa(v.Height)
}

// ParseViewport parses "WIDTHxHEIGHT" notation.
func ParseViewport(s string) (Viewport, error) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return Viewport{}, fmt.Errorf("bad viewport %q, expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return Viewport{}, fmt.Errorf("bad viewport width in %q", s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return Viewport{}, fmt.Errorf("bad viewport height in %q", s)
	}
	return Viewport{Width: width, Height: height}, nil
}

// CSSInclude describes a stylesheet linked from a page.
type CSSInclude struct {
	Href  string
	Media string // media attribute of the link, empty when absent
}

// Probe is implemented by page backends. Implementations serialize
// operations on a single page and record page failures with TrackURLError.
type Probe interface {
	// CSSIncludes returns stylesheets linked from the page in document
	// order, every href once.
	CSSIncludes(ctx context.Context, pageURL string) ([]CSSInclude, error)
	// MatchAny returns selectors which match at least one element of the page.
	MatchAny(ctx context.Context, pageURL string, selectors []string) ([]string, error)
	// MatchAboveFold returns selectors matching at least one element visible
	// without scrolling in the given viewport.
	MatchAboveFold(ctx context.Context, pageURL string, vp Viewport, selectors []string) ([]string, error)
	// FilterValidURLs returns urls without recorded errors, preserving order.
	FilterValidURLs(urls []string) []string
	// TrackURLError records page failure.
	TrackURLError(url string, err error)
	// Cleanup releases all backend resources.
	Cleanup() error
}
