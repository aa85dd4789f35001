// Package browser implements page probe on top of headless Chrome.
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"critcss/config"
	"critcss/probe"
)

var (
	//go:embed js/includes.js
	includesJS string
	//go:embed js/match.js
	matchJS string
	//go:embed js/abovefold.js
	aboveFoldJS string
	//go:embed js/status.js
	statusJS string
)

// Probe drives Chrome with one tab per page. Tabs are opened lazily on
// first use and kept until Cleanup.
type Probe struct {
	probe.Tracker

	cfg      *config.BrowserConfig
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu     sync.Mutex
	tabs   map[string]*tab
	closed bool
}

type tab struct {
	mu     sync.Mutex
	page   *rod.Page
	vp     probe.Viewport
	opened bool
	err    error
}

// New launches local Chrome or connects to the remote one.
func New(ctx context.Context, cfg *config.BrowserConfig, log *zap.Logger) (*Probe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Probe{
		cfg:  cfg,
		log:  log.Named("browser"),
		tabs: make(map[string]*tab),
	}

	controlURL := cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("unable to launch browser: %w", err)
		}
		p.launcher = l
		controlURL = u
		p.log.Debug("Browser launched", zap.String("url", controlURL), zap.Bool("headless", cfg.Headless))
	} else {
		p.log.Debug("Connecting to remote browser", zap.String("url", controlURL))
	}

	p.browser = rod.New().ControlURL(controlURL)
	if err := p.browser.Connect(); err != nil {
		if p.launcher != nil {
			p.launcher.Kill()
			p.launcher.Cleanup()
		}
		return nil, fmt.Errorf("unable to connect to browser: %w", err)
	}
	return p, nil
}

// withGetParameters appends parameters to the page url query.
func withGetParameters(pageURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return pageURL, nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	extra := make(url.Values, len(params))
	for k, v := range params {
		extra.Add(k, v)
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + extra.Encode()
	} else {
		u.RawQuery = extra.Encode()
	}
	return u.String(), nil
}

// queryPairs pairs every selector with its querySelector form.
func queryPairs(selectors []string) [][2]string {
	pairs := make([][2]string, 0, len(selectors))
	for _, s := range selectors {
		pairs = append(pairs, [2]string{s, probe.QueryFor(s)})
	}
	return pairs
}

// tab returns locked tab for page, opening it if necessary.
func (p *Probe) tab(ctx context.Context, pageURL string) (*tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("browser probe is closed")
	}
	t, ok := p.tabs[pageURL]
	if !ok {
		t = &tab{}
		p.tabs[pageURL] = t
	}
	p.mu.Unlock()

	t.mu.Lock()
	if !t.opened {
		page, err := p.open(ctx, pageURL)
		if err != nil && ctx.Err() != nil {
			t.mu.Unlock()
			return nil, ctx.Err()
		}
		t.opened, t.page, t.err = true, page, err
		if err != nil {
			p.log.Warn("Unable to load page", zap.String("url", pageURL), zap.Error(err))
			p.TrackURLError(pageURL, err)
		}
	}
	if t.err != nil {
		t.mu.Unlock()
		return nil, t.err
	}
	return t, nil
}

func (p *Probe) open(ctx context.Context, pageURL string) (*rod.Page, error) {
	target, err := withGetParameters(pageURL, p.cfg.GetParameters)
	if err != nil {
		return nil, &probe.URLError{URL: pageURL, Err: err}
	}

	var page *rod.Page
	if p.cfg.Stealth {
		page, err = stealth.Page(p.browser)
	} else {
		page, err = p.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, &probe.URLError{URL: pageURL, Err: err}
	}

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()

	err = page.Context(navCtx).Navigate(target)
	if err == nil {
		err = page.Context(navCtx).WaitLoad()
	}
	if err != nil {
		page.Close()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, &probe.LoadTimeoutError{URL: pageURL, Timeout: p.cfg.LoadTimeout}
		}
		return nil, &probe.URLError{URL: pageURL, Err: err}
	}

	res, err := page.Context(ctx).Eval(statusJS)
	if err != nil {
		page.Close()
		return nil, &probe.URLError{URL: pageURL, Err: err}
	}
	if code := res.Value.Int(); code >= 400 {
		page.Close()
		return nil, &probe.HTTPError{URL: pageURL, Code: code}
	}

	p.log.Debug("Page loaded", zap.String("url", target))
	return page, nil
}

// eval runs script in the page tab, resizing it to viewport when requested,
// and decodes result into out.
func (p *Probe) eval(ctx context.Context, pageURL string, vp *probe.Viewport, out any, js string, args ...any) error {
	t, err := p.tab(ctx, pageURL)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	if vp != nil && *vp != t.vp {
		err := t.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return &probe.URLError{URL: pageURL, Err: fmt.Errorf("unable to set viewport %s: %w", vp, err)}
		}
		t.vp = *vp
	}

	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &probe.URLError{URL: pageURL, Err: err}
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return &probe.URLError{URL: pageURL, Err: fmt.Errorf("unexpected script result: %w", err)}
	}
	return nil
}

// CSSIncludes returns stylesheets linked from page with absolute hrefs.
func (p *Probe) CSSIncludes(ctx context.Context, pageURL string) ([]probe.CSSInclude, error) {
	var links []struct {
		Href  string `json:"href"`
		Media string `json:"media"`
	}
	if err := p.eval(ctx, pageURL, nil, &links, includesJS); err != nil {
		return nil, err
	}
	out := make([]probe.CSSInclude, 0, len(links))
	for _, l := range links {
		out = append(out, probe.CSSInclude{Href: l.Href, Media: l.Media})
	}
	return out, nil
}

func (p *Probe) MatchAny(ctx context.Context, pageURL string, selectors []string) ([]string, error) {
	var matched []string
	if err := p.eval(ctx, pageURL, nil, &matched, matchJS, queryPairs(selectors)); err != nil {
		return nil, err
	}
	return matched, nil
}

func (p *Probe) MatchAboveFold(ctx context.Context, pageURL string, vp probe.Viewport, selectors []string) ([]string, error) {
	var matched []string
	if err := p.eval(ctx, pageURL, &vp, &matched, aboveFoldJS, queryPairs(selectors)); err != nil {
		return nil, err
	}
	return matched, nil
}

// Cleanup closes all tabs and the browser. Remote browser is left running.
func (p *Probe) Cleanup() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	tabs := p.tabs
	p.tabs = nil
	p.mu.Unlock()

	var err error
	for pageURL, t := range tabs {
		t.mu.Lock()
		if t.page != nil {
			if cerr := t.page.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("unable to close page %s: %w", pageURL, cerr))
			}
		}
		t.mu.Unlock()
	}
	if p.launcher != nil {
		if cerr := p.browser.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close browser: %w", cerr))
		}
		p.launcher.Cleanup()
	}
	p.log.Debug("Browser cleanup done", zap.Int("tabs", len(tabs)), zap.Error(err))
	return err
}
