package cssfiles_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"critcss/cssfiles"
)

type fakeFetcher struct {
	content map[string]string
	calls   map[string]*atomic.Int32
	release chan struct{}
}

func newFakeFetcher(content map[string]string) *fakeFetcher {
	f := &fakeFetcher{content: content, calls: make(map[string]*atomic.Int32)}
	for u := range content {
		f.calls[u] = &atomic.Int32{}
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if c, ok := f.calls[url]; ok {
		c.Add(1)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := f.content[url]
	if !ok {
		return "", errors.New("not found")
	}
	return text, nil
}

func (f *fakeFetcher) count(url string) int {
	if c, ok := f.calls[url]; ok {
		return int(c.Load())
	}
	return 0
}

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

func TestStore_DeduplicatesContent(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://a.test/site.css":     `.a{color:red}`,
		"https://cdn.test/site.css":   `.a{color:red}`,
		"https://a.test/another.css":  `.b{color:blue}`,
		"https://cdn.test/unused.css": `.c{color:green}`,
	})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, add := range [][2]string{
		{"https://a.test/", "https://a.test/site.css"},
		{"https://a.test/", "https://a.test/another.css"},
		{"https://a.test/page", "https://cdn.test/site.css"},
		{"https://a.test/page", "https://a.test/site.css"},
	} {
		if err := s.Add(ctx, add[0], add[1]); err != nil {
			t.Fatalf("Add(%s, %s) error = %v", add[0], add[1], err)
		}
	}

	files := s.Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 distinct files, got %d", len(files))
	}
	first := files[0]
	if !slices.Equal(first.URLs, []string{"https://a.test/site.css", "https://cdn.test/site.css"}) {
		t.Errorf("unexpected urls %q", first.URLs)
	}
	if !slices.Equal(first.Pages, []string{"https://a.test/", "https://a.test/page"}) {
		t.Errorf("unexpected pages %q", first.Pages)
	}
	if !slices.Equal(files[1].Pages, []string{"https://a.test/"}) {
		t.Errorf("unexpected pages %q", files[1].Pages)
	}
	if n := f.count("https://a.test/site.css"); n != 1 {
		t.Errorf("known url fetched %d times", n)
	}
	if len(s.Errors()) != 0 {
		t.Errorf("unexpected errors %v", s.Errors())
	}
}

func TestStore_FetchFailureIsRecordedOnce(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://a.test/ok.css": `.a{color:red}`})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))
	ctx := context.Background()

	for range 3 {
		if err := s.Add(ctx, "https://a.test/", "https://a.test/missing.css"); err != nil {
			t.Fatalf("fetch failure must not be returned, got %v", err)
		}
	}
	if err := s.Add(ctx, "https://a.test/", "https://a.test/ok.css"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	errs := s.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected single fetch error, got %v", errs)
	}
	var fe *cssfiles.FetchError
	if !errors.As(errs[0], &fe) || fe.URL != "https://a.test/missing.css" {
		t.Errorf("unexpected error %v", errs[0])
	}
	if !cssfiles.IsFetchError(s.FetchErrorFor("https://a.test/missing.css")) {
		t.Error("expected fetch error for failed url")
	}
	if s.FetchErrorFor("https://a.test/ok.css") != nil {
		t.Error("unexpected fetch error for good url")
	}
	if len(s.Files()) != 1 {
		t.Errorf("expected one file, got %d", len(s.Files()))
	}
}

func TestStore_ConcurrentAddsFetchOnce(t *testing.T) {
	const url = "https://a.test/site.css"
	f := newFakeFetcher(map[string]string{url: `.a{color:red}`})
	f.release = make(chan struct{})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Go(func() {
			if err := s.Add(context.Background(), fmt.Sprintf("https://a.test/p%02d", i), url); err != nil {
				t.Errorf("Add() error = %v", err)
			}
		})
	}
	close(f.release)
	wg.Wait()

	if n := f.count(url); n != 1 {
		t.Errorf("expected single fetch, got %d", n)
	}
	files := s.Files()
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	if len(files[0].Pages) != 16 {
		t.Errorf("expected 16 pages, got %d", len(files[0].Pages))
	}
}

func TestStore_AddMultiple(t *testing.T) {
	content := make(map[string]string)
	var urls []string
	for i := range 10 {
		u := fmt.Sprintf("https://a.test/%d.css", i)
		content[u] = fmt.Sprintf(".c%d{color:red}", i)
		urls = append(urls, u)
	}
	urls = append(urls, "https://a.test/broken.css")
	s := cssfiles.NewStore(newFakeFetcher(content), zaptest.NewLogger(t))

	if err := s.AddMultiple(context.Background(), "https://a.test/", urls, 3); err != nil {
		t.Fatalf("AddMultiple() error = %v", err)
	}
	if len(s.Files()) != 10 {
		t.Errorf("expected 10 files, got %d", len(s.Files()))
	}
	if len(s.Errors()) != 1 {
		t.Errorf("expected one error, got %v", s.Errors())
	}
}

func TestStore_CancelledContext(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://a.test/site.css": `.a{color:red}`})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Add(ctx, "https://a.test/", "https://a.test/site.css")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(s.Errors()) != 0 {
		t.Errorf("cancellation must not be recorded as fetch error: %v", s.Errors())
	}

	// url is not poisoned by cancellation
	if err := s.Add(context.Background(), "https://a.test/", "https://a.test/site.css"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(s.Files()) != 1 {
		t.Errorf("expected one file, got %d", len(s.Files()))
	}
}

func TestStore_ParseErrorsAndURLs(t *testing.T) {
	const url = "https://a.test/css/site.css"
	f := newFakeFetcher(map[string]string{url: `.a{background:url(../img/bg.png)}.b{color:red;;}}`})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))

	if err := s.Add(context.Background(), "https://a.test/", url); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	files := s.Files()
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	if got := files[0].AST.CSS(); !strings.Contains(got, `url("https://a.test/img/bg.png")`) {
		t.Errorf("relative url was not resolved: %s", got)
	}
	for _, err := range s.ParseErrors() {
		if !strings.HasPrefix(err.Error(), url+": ") {
			t.Errorf("parse error is not prefixed with url: %v", err)
		}
	}
}

func TestStore_CollateSelectorPages(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://a.test/common.css": `.a,.b{color:red}@keyframes k{from{top:0}}`,
		"https://a.test/home.css":   `.h{color:red}.a{margin:0}`,
	})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := s.AddMultiple(ctx, "p1", []string{"https://a.test/common.css"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMultiple(ctx, "p2", []string{"https://a.test/common.css", "https://a.test/home.css"}, 0); err != nil {
		t.Fatal(err)
	}

	sp := s.CollateSelectorPages()
	got := sp.Selectors()
	slices.Sort(got)
	if !slices.Equal(got, []string{".a", ".b", ".h"}) {
		t.Fatalf("unexpected selectors %q", got)
	}
	for _, tc := range []struct {
		selector, page string
		want           bool
	}{
		{".a", "p1", true},
		{".a", "p2", true},
		{".b", "p1", true},
		{".h", "p1", false},
		{".h", "p2", true},
		{"from", "p1", false},
	} {
		if sp.Has(tc.selector, tc.page) != tc.want {
			t.Errorf("Has(%s, %s) != %v", tc.selector, tc.page, tc.want)
		}
	}
}

func TestStore_PrunedASTs(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://a.test/vars.css":  `:root{--a:1px;--b:var(--a);--c:var(--d);--d:2px}.x{margin:var(--c)}`,
		"https://a.test/fonts.css": `@font-face{font-family:Foo;src:url(foo.woff2)}@font-face{font-family:Bar;src:url(bar.woff2)}.y{color:red}`,
		"https://a.test/text.css":  `.z{font-family:Foo,serif}`,
		"https://a.test/other.css": `.n{color:red}`,
	})
	s := cssfiles.NewStore(f, zaptest.NewLogger(t))
	urls := []string{
		"https://a.test/vars.css",
		"https://a.test/fonts.css",
		"https://a.test/text.css",
		"https://a.test/other.css",
	}
	if err := s.AddMultiple(context.Background(), "https://a.test/", urls, 1); err != nil {
		t.Fatal(err)
	}

	asts := s.PrunedASTs(set(":root", ".x", ".y", ".z"))
	if len(asts) != 3 {
		t.Fatalf("expected stylesheet without critical rules to be dropped, got %d", len(asts))
	}

	var out []string
	for _, ast := range asts {
		out = append(out, ast.CSS())
	}
	all := strings.Join(out, "\n")

	for _, gone := range []string{"--a", "--b", "Bar", "src:", "woff2"} {
		if strings.Contains(all, gone) {
			t.Errorf("%q should be pruned from:\n%s", gone, all)
		}
	}
	for _, kept := range []string{"--c:var(--d)", "--d:2px", "font-family:Foo", ".x{margin:var(--c)}"} {
		if !strings.Contains(all, kept) {
			t.Errorf("%q should be kept in:\n%s", kept, all)
		}
	}

	// source files are not modified
	if !strings.Contains(s.Files()[0].AST.CSS(), "--b:var(--a)") {
		t.Error("pruning modified stored stylesheet")
	}
}
