// Package critical generates critical CSS: rules of page stylesheets needed
// to render content visible without scrolling.
package critical

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"critcss/css"
	"critcss/cssfiles"
	"critcss/minify"
	"critcss/probe"
)

// Request describes single generation run.
type Request struct {
	URLs         []string
	Viewports    []probe.Viewport
	Filters      css.Filters
	SuccessRatio float64
	// Concurrency limits simultaneous stylesheet downloads of a page.
	Concurrency int
	// Progress is called with current step and expected total number of
	// steps: one for collection plus one per viewport of every required
	// page. Total increases when failed pages are replaced by others, the
	// last call of a successful run has step equal to total.
	Progress func(step, total int)
	// Trace when not nil is filled with intermediate results.
	Trace *Trace
}

// Trace keeps intermediate results of generation for debugging.
type Trace struct {
	RunID         string
	ValidURLs     []string
	Files         []*cssfiles.File
	SelectorPages cssfiles.SelectorPages
	Critical      map[string]struct{}
}

func (req *Request) validate() error {
	switch {
	case len(req.URLs) == 0:
		return &ConfigurationError{Reason: "no page urls"}
	case len(req.Viewports) == 0:
		return &ConfigurationError{Reason: "no viewports"}
	}
	for _, vp := range req.Viewports {
		if vp.Width <= 0 || vp.Height <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("bad viewport %s", vp)}
		}
	}
	for _, u := range req.URLs {
		if _, err := url.Parse(u); err != nil {
			return &ConfigurationError{Reason: fmt.Sprintf("bad page url %q", u)}
		}
	}
	return nil
}

// Generate produces critical CSS for pages of request. It returns non fatal
// problems as warnings. Probe is always cleaned up before return.
func Generate(ctx context.Context, req *Request, pp probe.Probe, fetcher cssfiles.Fetcher, m minify.Minifier, log *zap.Logger) (text string, warnings []error, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	defer func() {
		if cerr := pp.Cleanup(); cerr != nil {
			log.Warn("Unable to cleanup page probe", zap.Error(cerr))
		}
	}()

	if err := req.validate(); err != nil {
		return "", nil, err
	}

	runID := uuid.New()
	if id, err := uuid.NewV7(); err == nil {
		runID = id
	}
	log = log.Named("critical").With(zap.Stringer("run", runID))

	policy := NewSuccessPolicy(len(req.URLs), req.SuccessRatio)

	// only required pages are probed, total grows when failed pages have to
	// be replaced
	var (
		step  int
		total = 1 + policy.Required*len(req.Viewports)
	)
	progress := func() {
		step++
		total = max(total, step)
		if req.Progress != nil {
			req.Progress(step, total)
		}
	}

	log.Info("Generating critical css",
		zap.Int("pages", len(req.URLs)),
		zap.Int("required", policy.Required),
		zap.Int("viewports", len(req.Viewports)))

	store := cssfiles.NewStore(fetcher, log)
	collected, pageErrs, err := collect(ctx, req, pp, store, policy, log)
	if err != nil {
		return "", nil, err
	}
	progress()

	validURLs := pp.FilterValidURLs(req.URLs)
	if err := policy.Check(len(validURLs), pageErrs); err != nil {
		return "", nil, err
	}

	// selector pages are collated before filtering, filtered out declarations
	// must not hide selectors from the dangerous check
	pages := store.CollateSelectorPages()
	store.ApplyFilters(req.Filters)

	// only pages with collected stylesheets can tell dangerous selectors
	critical, err := newResolver(pp, pages, req.Viewports, policy, pageErrs, progress, log).run(ctx, pp.FilterValidURLs(collected))
	if err != nil {
		return "", nil, err
	}
	validURLs = pp.FilterValidURLs(req.URLs)

	asts := store.PrunedASTs(critical)
	parts := make([]string, 0, len(asts))
	for _, ast := range asts {
		parts = append(parts, ast.CSS())
	}
	text = strings.Join(parts, "\n")

	if minified, merr := m.Minify(text); merr != nil {
		log.Warn("Unable to minify css", zap.Error(merr))
		warnings = append(warnings, &MinifyError{Err: merr})
	} else {
		text = minified
	}

	if req.Trace != nil {
		*req.Trace = Trace{
			RunID:         runID.String(),
			ValidURLs:     validURLs,
			Files:         store.Files(),
			SelectorPages: pages,
			Critical:      critical,
		}
	}

	if strings.TrimSpace(text) == "" {
		errs := make(map[string]error, len(validURLs))
		for _, u := range validURLs {
			errs[u] = &EmptyResultError{URL: u}
		}
		return "", nil, &ThresholdError{Required: policy.Required, Succeeded: len(validURLs), Errors: errs}
	}

	warnings = append(append(store.Errors(), store.ParseErrors()...), warnings...)
	log.Info("Critical css generated",
		zap.Int("bytes", len(text)),
		zap.Int("stylesheets", len(asts)),
		zap.Int("selectors", len(critical)),
		zap.Int("warnings", len(warnings)))
	return text, warnings, nil
}

// collect adds stylesheets of pages to the store until enough pages succeed.
// It returns pages stylesheets were collected for and failures of pages it
// could not get stylesheets for.
func collect(ctx context.Context, req *Request, pp probe.Probe, store *cssfiles.Store, policy SuccessPolicy, log *zap.Logger) ([]string, map[string]error, error) {
	var collected []string
	errs := make(map[string]error)

	for _, pageURL := range req.URLs {
		hrefs, err := includes(ctx, pp, pageURL, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			log.Warn("Unable to get page stylesheets", zap.String("url", pageURL), zap.Error(err))
			pp.TrackURLError(pageURL, err)
			errs[pageURL] = err
			continue
		}
		if err := store.AddMultiple(ctx, pageURL, hrefs, req.Concurrency); err != nil {
			return nil, nil, err
		}
		collected = append(collected, pageURL)
		if policy.Reached(len(collected)) {
			break
		}
	}
	return collected, errs, nil
}

// includes returns absolute urls of page stylesheets which could apply to
// screen.
func includes(ctx context.Context, pp probe.Probe, pageURL string, log *zap.Logger) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &probe.URLError{URL: pageURL, Err: err}
	}
	links, err := pp.CSSIncludes(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	hrefs := make([]string, 0, len(links))
	for _, inc := range links {
		if !screenMedia(inc.Media) {
			log.Debug("Stylesheet skipped for media", zap.String("href", inc.Href), zap.String("media", inc.Media))
			continue
		}
		ref, err := url.Parse(inc.Href)
		if err != nil {
			log.Debug("Bad stylesheet href", zap.String("href", inc.Href), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref).String()
		if !slices.Contains(hrefs, abs) {
			hrefs = append(hrefs, abs)
		}
	}
	return hrefs, nil
}

// screenMedia reports if link media attribute allows stylesheet to be used
// on screen.
func screenMedia(media string) bool {
	if strings.TrimSpace(media) == "" {
		return true
	}
	for _, mq := range css.ParseMediaQueries(media) {
		if mq.Useful() {
			return true
		}
	}
	return false
}
