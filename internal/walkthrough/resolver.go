// File: internal/walkthrough/resolver.go
package walkthrough

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/mapping"
	"github.com/xkilldash9x/stepwise/internal/textnorm"
)

// Stage names the resolution stage that produced a selector.
type Stage string

const (
	StageCache     Stage = "cache"
	StageSelector  Stage = "selector"
	StageMapping   Stage = "mapping"
	StageHeuristic Stage = "heuristic"
)

// Resolved is a step target located on the live page.
type Resolved struct {
	Selector string
	Element  *browser.Element
	Stage    Stage
}

// Resolver locates the element a step refers to. Stages run strictly in order
// (cache, explicit selector, mapping source, heuristic scan) and the first
// stage whose selector matches a live element wins. Every stage re-queries
// the page.
type Resolver struct {
	page    browser.Page
	source  mapping.Source
	scanner Scanner
	cache   *SelectorCache
	logger  *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithScanner replaces the heuristic scanner.
func WithScanner(s Scanner) ResolverOption {
	return func(r *Resolver) { r.scanner = s }
}

// NewResolver creates a resolver over page. A nil source disables the mapping
// stage and a nil cache gets a private one.
func NewResolver(page browser.Page, source mapping.Source, cache *SelectorCache, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if source == nil {
		source = mapping.None{}
	}
	if cache == nil {
		cache = NewSelectorCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		page:    page,
		source:  source,
		scanner: NewHeuristicScanner(),
		cache:   cache,
		logger:  logger.Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the selector cache shared with the owning session.
func (r *Resolver) Cache() *SelectorCache { return r.cache }

// Resolve returns the element for step, or nil when no stage finds one.
// A nil result is a normal outcome.
func (r *Resolver) Resolve(ctx context.Context, step schemas.Step) *Resolved {
	key := step.Identity()
	log := r.logger.With(zap.String("step", key))

	if sel, ok := r.cache.Get(key); ok {
		if el := r.query(ctx, sel); el != nil {
			log.Debug("Resolved from cache.", zap.String("selector", sel))
			return &Resolved{Selector: sel, Element: el, Stage: StageCache}
		}
		log.Debug("Evicting stale cache entry.", zap.String("selector", sel))
		r.cache.Delete(key)
	}

	if step.Selector != "" {
		el := r.query(ctx, step.Selector)
		log.Debug("Direct selector stage.", zap.String("selector", step.Selector), zap.Bool("found", el != nil))
		if el != nil {
			return r.remember(key, step.Selector, el, StageSelector)
		}
	}

	if step.TargetText != "" {
		res := r.source.Lookup(ctx, step.TargetText)
		switch res.Kind {
		case mapping.Found:
			el := r.query(ctx, res.Selector)
			log.Debug("Mapping stage.", zap.String("target", step.TargetText), zap.String("selector", res.Selector), zap.Bool("found", el != nil))
			if el != nil {
				return r.remember(key, res.Selector, el, StageMapping)
			}
		case mapping.LookupError:
			log.Warn("Mapping lookup failed; continuing with heuristics.", zap.String("target", step.TargetText), zap.Error(res.Err))
		default:
			log.Debug("No mapping for target.", zap.String("target", step.TargetText))
		}
	}

	doc, err := r.page.Snapshot(ctx)
	if err != nil {
		log.Warn("Could not snapshot page for heuristic scan.", zap.Error(err))
		return nil
	}
	match, ok := r.scanner.Scan(textnorm.Normalize(step.TargetText), doc)
	if !ok {
		log.Debug("Heuristic scan found nothing.", zap.String("target", step.TargetText))
		return nil
	}
	el := r.query(ctx, match.Selector)
	log.Debug("Heuristic stage.",
		zap.String("strategy", match.Strategy),
		zap.String("selector", match.Selector),
		zap.Bool("found", el != nil),
	)
	if el == nil {
		return nil
	}
	return r.remember(key, match.Selector, el, StageHeuristic)
}

func (r *Resolver) remember(key, selector string, el *browser.Element, stage Stage) *Resolved {
	r.cache.Put(key, selector)
	return &Resolved{Selector: selector, Element: el, Stage: stage}
}

// query treats any failure to locate the selector as a miss.
func (r *Resolver) query(ctx context.Context, selector string) *browser.Element {
	el, err := r.page.Query(ctx, selector)
	switch {
	case err == nil:
		return el
	case errors.Is(err, browser.ErrNotFound):
	case errors.Is(err, browser.ErrInvalidSelector):
		r.logger.Debug("Ignoring invalid selector.", zap.String("selector", selector), zap.Error(err))
	default:
		r.logger.Warn("Page query failed.", zap.String("selector", selector), zap.Error(err))
	}
	return nil
}
