package critical

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"critcss/cssfiles"
	"critcss/probe"
)

// resolver finds selectors matching above the fold content of pages.
type resolver struct {
	pp        probe.Probe
	pages     cssfiles.SelectorPages
	viewports []probe.Viewport
	policy    SuccessPolicy
	progress  func()
	log       *zap.Logger

	aboveFold map[string]struct{}
	dangerous map[string]struct{}
	errs      map[string]error
	resolved  []string
}

// newResolver creates resolver, errs are failures of earlier stages which
// are reported along with its own.
func newResolver(pp probe.Probe, pages cssfiles.SelectorPages, viewports []probe.Viewport, policy SuccessPolicy, errs map[string]error, progress func(), log *zap.Logger) *resolver {
	r := &resolver{
		pp:        pp,
		pages:     pages,
		viewports: viewports,
		policy:    policy,
		progress:  progress,
		log:       log,
		aboveFold: make(map[string]struct{}),
		dangerous: make(map[string]struct{}),
		errs:      maps.Clone(errs),
	}
	if r.errs == nil {
		r.errs = make(map[string]error)
	}
	return r
}

// run processes valid pages in order until enough of them are resolved.
// Selector which matches a page not including any stylesheet it comes
// from is dangerous and never considered critical.
func (r *resolver) run(ctx context.Context, validURLs []string) (map[string]struct{}, error) {
	selectors := r.pages.Selectors()

	for _, pageURL := range validURLs {
		if r.policy.Reached(len(r.resolved)) {
			break
		}
		if err := r.page(ctx, pageURL, selectors); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.log.Warn("Unable to resolve selectors, trying next page", zap.String("url", pageURL), zap.Error(err))
			r.pp.TrackURLError(pageURL, err)
			r.errs[pageURL] = err
			continue
		}
		r.resolved = append(r.resolved, pageURL)
	}

	if err := r.policy.Check(len(r.resolved), r.errs); err != nil {
		return nil, err
	}

	critical := make(map[string]struct{}, len(r.aboveFold))
	for s := range r.aboveFold {
		if _, bad := r.dangerous[s]; !bad {
			critical[s] = struct{}{}
		}
	}
	r.log.Debug("Selectors resolved",
		zap.Int("selectors", len(selectors)),
		zap.Int("above fold", len(r.aboveFold)),
		zap.Int("dangerous", len(r.dangerous)),
		zap.Int("critical", len(critical)))
	return critical, nil
}

// page collects selectors of a single page. Results are merged only when
// page is processed completely.
func (r *resolver) page(ctx context.Context, pageURL string, selectors []string) error {
	matched, err := r.pp.MatchAny(ctx, pageURL, selectors)
	if err != nil {
		return err
	}

	var dangerous []string
	for _, s := range matched {
		if !r.pages.Has(s, pageURL) {
			dangerous = append(dangerous, s)
		}
	}

	var above []string
	for _, vp := range r.viewports {
		r.progress()
		found, err := r.pp.MatchAboveFold(ctx, pageURL, vp, matched)
		if err != nil {
			return err
		}
		r.log.Debug("Above fold selectors", zap.String("url", pageURL), zap.Stringer("viewport", vp), zap.Int("count", len(found)))
		above = append(above, found...)
	}

	for _, s := range dangerous {
		r.dangerous[s] = struct{}{}
	}
	for _, s := range above {
		r.aboveFold[s] = struct{}{}
	}
	return nil
}
