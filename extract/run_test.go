package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"critcss/config"
	"critcss/probe"
	"critcss/state"
)

func TestPageURLs(t *testing.T) {
	got, err := pageURLs([]string{"https://a.test/", "http://b.test/x?y=1", "file:///tmp/index.html"})
	if err != nil {
		t.Fatalf("pageURLs() error = %v", err)
	}
	if !slices.Equal(got, []string{"https://a.test/", "http://b.test/x?y=1", "file:///tmp/index.html"}) {
		t.Errorf("unexpected urls %q", got)
	}

	for _, bad := range []string{"a.test/page", "ftp://a.test/", "http://[::1"} {
		if _, err := pageURLs([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestBuildFilters(t *testing.T) {
	f, err := buildFilters(&config.FiltersConfig{})
	if err != nil {
		t.Fatalf("buildFilters() error = %v", err)
	}
	if f.Properties != nil || f.AtRules != nil {
		t.Error("empty configuration must produce empty filters")
	}

	f, err = buildFilters(&config.FiltersConfig{
		ExcludeProperties: []string{"^transition", "^animation$"},
		ExcludeAtRules:    []string{"^font-face$"},
	})
	if err != nil {
		t.Fatalf("buildFilters() error = %v", err)
	}
	props := map[string]bool{"transition": false, "transition-delay": false, "animation": false, "animation-name": true, "color": true}
	for name, keep := range props {
		if got := f.Properties(name, "x"); got != keep {
			t.Errorf("Properties(%q) = %v, want %v", name, got, keep)
		}
	}
	if f.AtRules("font-face") || !f.AtRules("media") {
		t.Error("unexpected at-rule filter result")
	}

	if _, err := buildFilters(&config.FiltersConfig{ExcludeAtRules: []string{"("}}); err == nil {
		t.Error("expected error for bad regexp")
	}
}

func TestForcedCharset(t *testing.T) {
	log := zaptest.NewLogger(t)

	if enc := forcedCharset("", log); enc != nil {
		t.Errorf("empty name must not force encoding, got %v", enc)
	}
	if enc := forcedCharset("no-such-charset", log); enc != nil {
		t.Errorf("unknown name must not force encoding, got %v", enc)
	}
	if enc := forcedCharset(" windows-1251 ", log); enc != charmap.Windows1251 {
		t.Errorf("unexpected encoding %v", enc)
	}
}

type stubProbe struct {
	probe.Tracker

	includes []probe.CSSInclude
	present  []string
	visible  []string
	cleanups int
}

func (p *stubProbe) CSSIncludes(context.Context, string) ([]probe.CSSInclude, error) {
	return p.includes, nil
}

func (p *stubProbe) MatchAny(_ context.Context, _ string, selectors []string) ([]string, error) {
	return intersect(selectors, p.present), nil
}

func (p *stubProbe) MatchAboveFold(_ context.Context, _ string, _ probe.Viewport, selectors []string) ([]string, error) {
	return intersect(selectors, p.visible), nil
}

func (p *stubProbe) Cleanup() error {
	p.cleanups++
	return nil
}

func intersect(selectors, known []string) []string {
	var out []string
	for _, s := range selectors {
		if slices.Contains(known, s) {
			out = append(out, s)
		}
	}
	return out
}

func testEnv(t *testing.T) *state.LocalEnv {
	t.Helper()

	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Generation.Viewports = []string{"1200x800"}
	cfg.Generation.Minifier = config.MinifierKindNone

	env := state.EnvFromContext(state.ContextWithEnv(context.Background()))
	env.Cfg = cfg
	env.Log = zaptest.NewLogger(t)
	return env
}

func TestProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/main.css" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Write([]byte(".a{color:red;transition:all 1s}.b{color:blue}"))
	}))
	defer srv.Close()

	env := testEnv(t)
	env.Cfg.Generation.Filters.ExcludeProperties = []string{"^transition"}

	pp := &stubProbe{
		includes: []probe.CSSInclude{{Href: "/main.css"}},
		present:  []string{".a", ".b"},
		visible:  []string{".a"},
	}
	dst := filepath.Join(t.TempDir(), "out.css")

	if err := process(context.Background(), env, []string{srv.URL + "/"}, dst, pp); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if pp.cleanups != 1 {
		t.Errorf("probe cleanup called %d times", pp.cleanups)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != ".a{color:red}" {
		t.Errorf("unexpected output %q", data)
	}

	err = process(context.Background(), env, []string{srv.URL + "/"}, dst, &stubProbe{
		includes: pp.includes, present: pp.present, visible: pp.visible,
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}
}

func TestProcess_BadFilter(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Generation.Filters.ExcludeAtRules = []string{"["}

	pp := &stubProbe{}
	err := process(context.Background(), env, []string{"https://a.test/"}, t.TempDir(), pp)
	if err == nil || !strings.Contains(err.Error(), "bad at-rule filter") {
		t.Errorf("unexpected error %v", err)
	}
	if pp.cleanups != 1 {
		t.Errorf("probe cleanup called %d times", pp.cleanups)
	}
}
