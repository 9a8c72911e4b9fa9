package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/extraction"
)

var (
	digitsExpr   = regexp.MustCompile(`(\d+)`)
	capacityExpr = regexp.MustCompile(`(?i)(\d+)(gb|tb)`)
)

// BootstrapSource reads the grid tiles a page assigns to a global variable.
// It only runs when structured markup yields nothing.
type BootstrapSource struct {
	assignment *regexp.Regexp
	logger     *slog.Logger
}

var _ extraction.Strategy = (*BootstrapSource)(nil)

// NewBootstrapSource locates `window.<variable> = {...}` assignments.
func NewBootstrapSource(variable string, log *slog.Logger) *BootstrapSource {
	return &BootstrapSource{
		assignment: regexp.MustCompile(`window\.` + regexp.QuoteMeta(variable) + `\s*=\s*`),
		logger:     log,
	}
}

// Name identifies the strategy inside the registry.
func (s *BootstrapSource) Name() string {
	return StrategyBootstrap
}

type bootstrapBlob struct {
	Tiles []json.RawMessage `json:"tiles"`
}

type bootstrapTile struct {
	Title      string          `json:"title"`
	PartNumber json.RawMessage `json:"partNumber"`
	Price      struct {
		CurrentPrice struct {
			RawAmount json.RawMessage `json:"raw_amount"`
		} `json:"currentPrice"`
		PriceCurrency string `json:"priceCurrency"`
	} `json:"price"`
	Filters struct {
		Dimensions map[string]any `json:"dimensions"`
	} `json:"filters"`
}

// Extract decodes the first usable assignment and maps its tiles to records.
func (s *BootstrapSource) Extract(doc *goquery.Document, target extraction.Target) ([]domain.RawProductRecord, []domain.Skip) {
	blob, ok := s.findBlob(doc)
	if !ok {
		return nil, nil
	}

	var (
		records []domain.RawProductRecord
		skipped []domain.Skip
	)
	for i, raw := range blob.Tiles {
		var tile bootstrapTile
		if err := json.Unmarshal(raw, &tile); err != nil {
			s.debug("skip malformed tile", "index", i, "error", err)
			title, titled := looseName(raw, "title")
			if titled && !target.Matches(title) {
				continue
			}
			if !titled {
				title = fmt.Sprintf("bootstrap tile %d", i)
			}
			skipped = append(skipped, domain.Skip{Name: title, Reason: extraction.ReasonMalformed})
			continue
		}
		if !target.Matches(strings.TrimSpace(tile.Title)) {
			continue
		}
		records = append(records, tile.toRecord())
	}
	return records, skipped
}

// findBlob tries every assignment in document order and keeps the first that
// decodes, so guards like `if (window.X == null)` are stepped over.
func (s *BootstrapSource) findBlob(doc *goquery.Document) (bootstrapBlob, bool) {
	var (
		blob  bootstrapBlob
		found bool
	)

	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		for _, loc := range s.assignment.FindAllStringIndex(text, -1) {
			var candidate bootstrapBlob
			// The decoder stops after one value, so trailing statements are ignored.
			if err := json.NewDecoder(strings.NewReader(text[loc[1]:])).Decode(&candidate); err != nil {
				s.debug("bootstrap assignment unparsable", "offset", loc[0], "error", err)
				continue
			}
			blob, found = candidate, true
			return false
		}
		return true
	})

	return blob, found
}

func (t bootstrapTile) toRecord() domain.RawProductRecord {
	title := strings.TrimSpace(t.Title)
	currency := t.Price.PriceCurrency
	if currency == "" {
		currency = defaultCurrency
	}
	return domain.RawProductRecord{
		Name:          title,
		Identifier:    parseIdentifier(t.PartNumber),
		Description:   describeTile(title, t.Filters.Dimensions),
		PriceAmount:   parseAmount(t.Price.CurrentPrice.RawAmount),
		PriceCurrency: currency,
	}
}

// describeTile rebuilds description text the normalizer understands. The
// title goes last so network wording in it still matches.
func describeTile(title string, dims map[string]any) string {
	var parts []string
	if m := digitsExpr.FindStringSubmatch(dimension(dims, "tsMemorySize")); m != nil {
		parts = append(parts, m[1]+"GB unified memory")
	}
	if m := capacityExpr.FindStringSubmatch(dimension(dims, "dimensionCapacity")); m != nil {
		parts = append(parts, m[1]+strings.ToUpper(m[2])+" SSD")
	}
	parts = append(parts, title)
	return strings.Join(parts, " · ")
}

func dimension(dims map[string]any, key string) string {
	v, ok := dims[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (s *BootstrapSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
