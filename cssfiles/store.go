// Package cssfiles collects stylesheets used by a set of pages keeping a
// single parsed copy of every distinct content.
package cssfiles

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"critcss/css"
)

// maxVariableRounds bounds unused custom property elimination.
const maxVariableRounds = 10

// Fetcher downloads stylesheet text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// File is a single distinct stylesheet content with every page and url it
// was found at, in order of discovery.
type File struct {
	CSS   string
	AST   *css.StyleAST
	Pages []string
	URLs  []string

	order int
}

func (f *File) addPage(page string) {
	if !slices.Contains(f.Pages, page) {
		f.Pages = append(f.Pages, page)
	}
}

func (f *File) addURL(url string) {
	if !slices.Contains(f.URLs, url) {
		f.URLs = append(f.URLs, url)
	}
}

// FetchError is kept for stylesheet which could not be retrieved or read.
// It only affects the stylesheet, not pages including it.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to fetch css %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SelectorPages maps selector text to set of pages including a stylesheet
// with it.
type SelectorPages map[string]map[string]struct{}

// Selectors returns all selectors in unspecified order.
func (sp SelectorPages) Selectors() []string {
	out := make([]string, 0, len(sp))
	for s := range sp {
		out = append(out, s)
	}
	return out
}

// Has reports if selector comes from a stylesheet included by page.
func (sp SelectorPages) Has(selector, page string) bool {
	_, ok := sp[selector][page]
	return ok
}

// Store is a per run set of stylesheets.
type Store struct {
	fetcher Fetcher
	log     *zap.Logger
	flights singleflight.Group

	mu        sync.Mutex
	seq       map[string]int
	files     []*File
	byURL     map[string]*File
	byContent map[string]*File
	failed    map[string]*FetchError
	errs      []error
	parseErrs []error
}

func NewStore(fetcher Fetcher, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		fetcher:   fetcher,
		log:       log.Named("css-store"),
		seq:       make(map[string]int),
		byURL:     make(map[string]*File),
		byContent: make(map[string]*File),
		failed:    make(map[string]*FetchError),
	}
}

// Add records that page includes stylesheet at cssURL fetching it when url
// is seen first time. Fetch failures are kept as errors of the store, only
// context cancellation is returned.
func (s *Store) Add(ctx context.Context, pageURL, cssURL string) error {
	s.mu.Lock()
	s.reserveLocked(cssURL)
	if _, bad := s.failed[cssURL]; bad {
		s.mu.Unlock()
		return nil
	}
	if f, ok := s.byURL[cssURL]; ok {
		f.addPage(pageURL)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	v, err, shared := s.flights.Do(cssURL, func() (any, error) {
		return s.load(ctx, cssURL)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return nil
	}
	if shared {
		s.log.Debug("Shared css fetch", zap.String("url", cssURL), zap.String("page", pageURL))
	}

	s.mu.Lock()
	v.(*File).addPage(pageURL)
	s.mu.Unlock()
	return nil
}

// AddMultiple adds stylesheets of a single page fetching up to limit of them
// concurrently. Non positive limit means no limit.
func (s *Store) AddMultiple(ctx context.Context, pageURL string, cssURLs []string, limit int) error {
	// keep document order regardless of download order
	s.mu.Lock()
	for _, u := range cssURLs {
		s.reserveLocked(u)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, u := range cssURLs {
		g.Go(func() error {
			return s.Add(gctx, pageURL, u)
		})
	}
	return g.Wait()
}

// reserveLocked remembers position of url in order of discovery.
func (s *Store) reserveLocked(cssURL string) {
	if _, ok := s.seq[cssURL]; !ok {
		s.seq[cssURL] = len(s.seq)
	}
}

// sortedLocked returns files in order of discovery of their urls.
func (s *Store) sortedLocked() []*File {
	files := slices.Clone(s.files)
	slices.SortStableFunc(files, func(a, b *File) int {
		return a.order - b.order
	})
	return files
}

// load fetches and parses stylesheet. It runs once per url at a time.
func (s *Store) load(ctx context.Context, cssURL string) (*File, error) {
	s.mu.Lock()
	if f, ok := s.byURL[cssURL]; ok {
		s.mu.Unlock()
		return f, nil
	}
	if fe, bad := s.failed[cssURL]; bad {
		s.mu.Unlock()
		return nil, fe
	}
	s.mu.Unlock()

	text, err := s.fetcher.Fetch(ctx, cssURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.fail(cssURL, err)
	}

	if f := s.reuse(text, cssURL); f != nil {
		return f, nil
	}

	// parsing is done outside of the lock, content is checked again after
	ast, err := css.Parse(text, s.log)
	if err == nil {
		err = ast.AbsolutifyURLs(cssURL)
	}
	if err != nil {
		return nil, s.fail(cssURL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.byContent[text]; ok {
		s.addURLLocked(f, cssURL)
		return f, nil
	}
	f := &File{CSS: text, AST: ast, URLs: []string{cssURL}, order: s.seq[cssURL]}
	s.files = append(s.files, f)
	s.byURL[cssURL] = f
	s.byContent[text] = f
	for _, perr := range ast.Errors() {
		s.parseErrs = append(s.parseErrs, fmt.Errorf("%s: %w", cssURL, perr))
	}
	s.log.Debug("New css file",
		zap.String("url", cssURL),
		zap.Int("bytes", len(text)),
		zap.Int("rules", ast.RuleCount()),
		zap.Int("parse errors", len(ast.Errors())))
	return f, nil
}

// reuse returns existing file with identical content and remembers url for it.
func (s *Store) reuse(text, cssURL string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byContent[text]
	if !ok {
		return nil
	}
	s.addURLLocked(f, cssURL)
	s.log.Debug("Duplicate css content", zap.String("url", cssURL), zap.String("original", f.URLs[0]))
	return f
}

func (s *Store) addURLLocked(f *File, cssURL string) {
	f.addURL(cssURL)
	f.order = min(f.order, s.seq[cssURL])
	s.byURL[cssURL] = f
}

func (s *Store) fail(cssURL string, err error) error {
	fe := &FetchError{URL: cssURL, Err: err}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.failed[cssURL]; ok {
		return old
	}
	s.failed[cssURL] = fe
	s.errs = append(s.errs, fe)
	s.log.Warn("Unable to load css", zap.String("url", cssURL), zap.Error(err))
	return fe
}

// CollateSelectorPages builds selector to pages map over all stylesheets.
func (s *Store) CollateSelectorPages() SelectorPages {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := make(SelectorPages)
	for _, f := range s.sortedLocked() {
		f.AST.ForEachSelector(func(selector string) {
			pages, ok := sp[selector]
			if !ok {
				pages = make(map[string]struct{})
				sp[selector] = pages
			}
			for _, p := range f.Pages {
				pages[p] = struct{}{}
			}
		})
	}
	return sp
}

// ApplyFilters applies filters to every stylesheet in place.
func (s *Store) ApplyFilters(f css.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range s.files {
		file.AST.ApplyFilters(f)
	}
}

// PrunedASTs returns pruned copies of all stylesheets reduced to critical
// selectors. Custom properties not referenced anywhere and fonts not used
// by remaining rules are removed, stylesheets without rules are dropped.
func (s *Store) PrunedASTs(critical map[string]struct{}) []*css.StyleAST {
	s.mu.Lock()
	asts := make([]*css.StyleAST, 0, len(s.files))
	for _, f := range s.sortedLocked() {
		asts = append(asts, f.AST.Pruned(critical))
	}
	s.mu.Unlock()

	// removing variable may leave others it referenced unused
	prevUsed := -1
	for round := range maxVariableRounds {
		used := make(map[string]struct{})
		for _, ast := range asts {
			for v := range ast.UsedVariables() {
				used[v] = struct{}{}
			}
		}
		if len(used) == prevUsed {
			break
		}
		prevUsed = len(used)

		var removed int
		for _, ast := range asts {
			removed += ast.PruneUnusedVariables(used)
		}
		s.log.Debug("Unused variables pruned", zap.Int("round", round), zap.Int("used", len(used)), zap.Int("removed", removed))
		if removed == 0 {
			break
		}
	}

	fonts := make(map[string]struct{})
	for _, ast := range asts {
		for f := range ast.UsedFontFamilies() {
			fonts[f] = struct{}{}
		}
	}
	for _, ast := range asts {
		ast.PruneNonCriticalFonts(fonts)
	}

	return slices.DeleteFunc(asts, func(ast *css.StyleAST) bool {
		return ast.RuleCount() == 0
	})
}

// Errors returns stylesheet fetch errors in order of occurrence.
func (s *Store) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.errs)
}

// ParseErrors returns recoverable parse problems prefixed with stylesheet url.
func (s *Store) ParseErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.parseErrs)
}

// Files returns distinct stylesheets in order of discovery.
func (s *Store) Files() []*File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// FetchErrorFor returns fetch error recorded for url if any.
func (s *Store) FetchErrorFor(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fe, ok := s.failed[url]; ok {
		return fe
	}
	return nil
}

// IsFetchError reports whether err is a stylesheet fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
