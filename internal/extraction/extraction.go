package extraction

import (
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"RefurbTracker/internal/domain"
)

// Target narrows extraction to the product category of interest.
type Target struct {
	ProductType string
	NamePattern *regexp.Regexp
}

// Matches reports whether a product name belongs to the target.
func (t Target) Matches(name string) bool {
	if name == "" {
		return false
	}
	if t.NamePattern == nil {
		return true
	}
	return t.NamePattern.MatchString(name)
}

// CompileTarget builds a case-insensitive Target from config strings.
func CompileTarget(productType, namePattern string) (Target, error) {
	target := Target{ProductType: productType}
	if namePattern == "" {
		return target, nil
	}
	re, err := regexp.Compile("(?i)" + namePattern)
	if err != nil {
		return Target{}, fmt.Errorf("compile product pattern %q: %w", namePattern, err)
	}
	target.NamePattern = re
	return target, nil
}

// ReasonMalformed marks an embedded item that could not be decoded.
const ReasonMalformed = "malformed item"

// Strategy is one way of reading product records out of a parsed page.
// Items it cannot decode are reported as skips rather than dropped.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, target Target) ([]domain.RawProductRecord, []domain.Skip)
}

// Registry keeps strategies in the order they should be tried.
type Registry struct {
	order      []string
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register appends a strategy, or replaces one with the same name in place.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	name := strategy.Name()
	if _, ok := r.strategies[name]; !ok {
		r.order = append(r.order, name)
	}
	r.strategies[name] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("strategy %s is not registered", name)
}

// Ordered lists strategies in registration order.
func (r *Registry) Ordered() []Strategy {
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}
