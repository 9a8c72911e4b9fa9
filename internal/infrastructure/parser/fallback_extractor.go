package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/extraction"
	"RefurbTracker/internal/ports"
)

// PathNone is reported when no strategy produced a record.
const PathNone = "none"

// Strategy names a site can list in its configured order.
const (
	StrategyJSONLD    = "json-ld"
	StrategyBootstrap = "bootstrap"
)

// DefaultStrategyOrder tries structured markup before the bootstrap blob.
var DefaultStrategyOrder = []string{StrategyJSONLD, StrategyBootstrap}

// FallbackExtractor implements ProductExtractor by trying registered strategies in order.
type FallbackExtractor struct {
	registry *extraction.Registry
	target   extraction.Target
	logger   *slog.Logger
}

var _ ports.ProductExtractor = (*FallbackExtractor)(nil)

// NewFallbackExtractor wires a strategy registry with the site's target filter.
func NewFallbackExtractor(reg *extraction.Registry, target extraction.Target, log *slog.Logger) *FallbackExtractor {
	return &FallbackExtractor{
		registry: reg,
		target:   target,
		logger:   log,
	}
}

// NewSiteExtractor resolves the named strategies, in order, from the
// built-in catalog. An empty order means DefaultStrategyOrder.
func NewSiteExtractor(target extraction.Target, bootstrapVariable string, order []string, log *slog.Logger) (*FallbackExtractor, error) {
	catalog := extraction.NewRegistry()
	catalog.Register(NewJSONLDSource(log))
	catalog.Register(NewBootstrapSource(bootstrapVariable, log))

	if len(order) == 0 {
		order = DefaultStrategyOrder
	}

	registry := extraction.NewRegistry()
	for _, name := range order {
		strategy, err := catalog.Resolve(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("site strategies: %w", err)
		}
		registry.Register(strategy)
	}
	return NewFallbackExtractor(registry, target, log), nil
}

// Extract returns records from the first strategy that yields any, plus its
// name. Skips from every strategy tried are kept.
func (e *FallbackExtractor) Extract(document string) (domain.Extraction, error) {
	if e.registry == nil {
		return domain.Extraction{}, fmt.Errorf("extraction registry is not configured")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("%w: %v", domain.ErrNoDocument, err)
	}

	var skipped []domain.Skip
	for _, strategy := range e.registry.Ordered() {
		records, skips := strategy.Extract(doc, e.target)
		skipped = append(skipped, skips...)
		e.debug("strategy finished", "strategy", strategy.Name(), "records", len(records), "skipped", len(skips))
		if len(records) > 0 {
			return domain.Extraction{Records: records, Path: strategy.Name(), Skipped: skipped}, nil
		}
	}

	return domain.Extraction{Path: PathNone, Skipped: skipped}, nil
}

func (e *FallbackExtractor) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
