package probe

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestQueryFor(t *testing.T) {
	tests := []struct {
		selector string
		want     string
	}{
		{"a", "a"},
		{"a:hover", "a"},
		{"a:HOVER", "a"},
		{":hover", "*"},
		{".btn::before", ".btn"},
		{"p:first-letter", "p"},
		{"::selection", "*"},
		{"div :focus", "div *"},
		{"ul li:first-child", "ul li:first-child"},
		{"input::-webkit-input-placeholder", "input"},
		{"a:-moz-any-link", "a"},
		{"a:not(.b)", "a:not(.b)"},
		{"li:nth-child(2n+1):hover", "li:nth-child(2n+1)"},
		{"nav>a:visited", "nav>a"},
		{"nav>:visited", "nav>*"},
		{"#main .item:focus-within", "#main .item"},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			if got := QueryFor(tt.selector); got != tt.want {
				t.Errorf("QueryFor(%q) = %q, want %q", tt.selector, got, tt.want)
			}
		})
	}
}

func TestParseViewport(t *testing.T) {
	tests := []struct {
		in      string
		want    Viewport
		wantErr bool
	}{
		{in: "1200x800", want: Viewport{Width: 1200, Height: 800}},
		{in: " 414X896 ", want: Viewport{Width: 414, Height: 896}},
		{in: "1200", wantErr: true},
		{in: "0x800", wantErr: true},
		{in: "1200x-1", wantErr: true},
		{in: "wide x tall", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseViewport(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseViewport(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseViewport(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if s := (Viewport{Width: 1920, Height: 1080}).String(); s != "1920x1080" {
		t.Errorf("String() = %q", s)
	}
}

func TestTracker(t *testing.T) {
	var tr Tracker
	urls := []string{"a", "b", "c", "d"}

	if got := tr.FilterValidURLs(urls); !slices.Equal(got, urls) {
		t.Errorf("expected all urls valid, got %q", got)
	}

	first := &HTTPError{URL: "b", Code: 500}
	tr.TrackURLError("b", first)
	tr.TrackURLError("b", errors.New("second"))
	tr.TrackURLError("d", &LoadTimeoutError{URL: "d", Timeout: time.Second})
	tr.TrackURLError("c", nil)

	if got := tr.FilterValidURLs(urls); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("unexpected valid urls %q", got)
	}
	if tr.URLError("b") != first {
		t.Error("first error must be kept")
	}
	errs := tr.URLErrors()
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}
	delete(errs, "b")
	if tr.URLError("b") == nil {
		t.Error("URLErrors must return a copy")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	var (
		tr Tracker
		wg sync.WaitGroup
	)
	for i := range 50 {
		wg.Go(func() {
			tr.TrackURLError(fmt.Sprintf("u%d", i%10), errors.New("failed"))
		})
	}
	wg.Wait()
	if n := len(tr.URLErrors()); n != 10 {
		t.Errorf("expected 10 tracked urls, got %d", n)
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	var err error = &URLError{URL: "https://a.test/", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("URLError must unwrap to its cause")
	}

	err = fmt.Errorf("probe: %w", &HTTPError{URL: "https://a.test/", Code: 404})
	var he *HTTPError
	if !errors.As(err, &he) || he.Code != 404 {
		t.Errorf("unexpected error %v", err)
	}

	lt := &LoadTimeoutError{URL: "https://a.test/", Timeout: 30 * time.Second}
	if lt.Error() != "page https://a.test/ did not load in 30s" {
		t.Errorf("unexpected message %q", lt.Error())
	}
}
