package pricing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/cache"
	"github.com/noah-isme/backend-sdeal/internal/obs"
)

// RuleSource lists the stored price overrides.
type RuleSource interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// Loader resolves the active price list. A storage failure or an empty rule
// table never surfaces to the caller; the built-in defaults are used instead.
type Loader struct {
	source RuleSource
	cache  *cache.JSON
	logger zerolog.Logger
}

// LoaderConfig groups Loader dependencies. Source and Cache are optional.
type LoaderConfig struct {
	Source RuleSource
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// NewLoader constructs a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{source: cfg.Source, cache: cfg.Cache, logger: cfg.Logger}
}

// Load returns a complete price list. It never fails.
func (l *Loader) Load(ctx context.Context) PriceList {
	if l == nil {
		obs.RecordPricingSource("defaults")
		return DefaultPriceList()
	}
	if l.cache.Enabled() {
		var cached PriceList
		ok, err := l.cache.Get(ctx, cache.PriceListKey, &cached)
		switch {
		case err != nil:
			l.logger.Warn().Err(err).Msg("pricing cache read failed")
		case ok && cached.Complete() == nil:
			obs.RecordPricingSource("cache")
			return cached
		}
	}

	prices, source := l.fromSource(ctx)
	obs.RecordPricingSource(source)
	if source == "store" {
		if err := l.cache.Set(ctx, cache.PriceListKey, prices); err != nil {
			l.logger.Warn().Err(err).Msg("pricing cache write failed")
		}
	}
	return prices
}

func (l *Loader) fromSource(ctx context.Context) (PriceList, string) {
	if l.source == nil {
		return DefaultPriceList(), "defaults"
	}
	rules, err := l.source.ListRules(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.logger.Warn().Err(err).Msg("pricing rules unavailable, using defaults")
		}
		return DefaultPriceList(), "defaults"
	}
	if len(rules) == 0 {
		l.logger.Warn().Msg("pricing rules empty, using defaults")
		return DefaultPriceList(), "defaults"
	}
	return Resolve(rules), "store"
}

// Invalidate drops the cached price list so the next Load reads the store.
func (l *Loader) Invalidate(ctx context.Context) {
	if l == nil {
		return
	}
	if err := l.cache.Delete(ctx, cache.PriceListKey); err != nil {
		l.logger.Warn().Err(err).Msg("pricing cache invalidate failed")
	}
}
