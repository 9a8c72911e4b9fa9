package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/extraction"
)

const (
	defaultCurrency = "USD"
	jsonLDSelector  = `script[type="application/ld+json"]`
)

// JSONLDSource reads schema.org Product items from ld+json script blocks.
type JSONLDSource struct {
	logger *slog.Logger
}

var _ extraction.Strategy = (*JSONLDSource)(nil)

// NewJSONLDSource builds the primary extraction strategy.
func NewJSONLDSource(log *slog.Logger) *JSONLDSource {
	return &JSONLDSource{logger: log}
}

// Name identifies the strategy inside the registry.
func (s *JSONLDSource) Name() string {
	return StrategyJSONLD
}

type jsonLDProduct struct {
	Type        json.RawMessage `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SKU         json.RawMessage `json:"sku"`
	Offers      json.RawMessage `json:"offers"`
}

type jsonLDOffer struct {
	Price         json.RawMessage `json:"price"`
	PriceCurrency string          `json:"priceCurrency"`
}

// Extract parses every ld+json block independently. A block or item that
// cannot be decoded is reported as a skip and the rest still count.
func (s *JSONLDSource) Extract(doc *goquery.Document, target extraction.Target) ([]domain.RawProductRecord, []domain.Skip) {
	var (
		records []domain.RawProductRecord
		skipped []domain.Skip
	)

	doc.Find(jsonLDSelector).Each(func(i int, script *goquery.Selection) {
		items, err := splitItems([]byte(strings.TrimSpace(script.Text())))
		if err != nil {
			s.debug("skip malformed ld+json block", "index", i, "error", err)
			skipped = append(skipped, domain.Skip{Name: fmt.Sprintf("ld+json block %d", i), Reason: extraction.ReasonMalformed})
			return
		}

		for j, raw := range items {
			var item jsonLDProduct
			if err := json.Unmarshal(raw, &item); err != nil {
				s.debug("skip malformed ld+json item", "index", i, "item", j, "error", err)
				name, named := looseName(raw, "name")
				if named && !target.Matches(name) {
					continue
				}
				if !named {
					name = fmt.Sprintf("ld+json block %d item %d", i, j)
				}
				skipped = append(skipped, domain.Skip{Name: name, Reason: extraction.ReasonMalformed})
				continue
			}
			if !hasType(item.Type, target.ProductType) || !target.Matches(item.Name) {
				continue
			}
			records = append(records, item.toRecord())
		}
	})

	return records, skipped
}

func (p jsonLDProduct) toRecord() domain.RawProductRecord {
	rec := domain.RawProductRecord{
		Name:          strings.TrimSpace(p.Name),
		Description:   p.Description,
		Identifier:    parseIdentifier(p.SKU),
		PriceCurrency: defaultCurrency,
	}
	if offer, ok := firstOffer(p.Offers); ok {
		rec.PriceAmount = parseAmount(offer.Price)
		if offer.PriceCurrency != "" {
			rec.PriceCurrency = offer.PriceCurrency
		}
	}
	return rec
}

// splitItems accepts either a single JSON object or an array of them.
func splitItems(data []byte) ([]json.RawMessage, error) {
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var item json.RawMessage
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return []json.RawMessage{item}, nil
}

func hasType(raw json.RawMessage, want string) bool {
	if want == "" {
		return true
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == want
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t == want {
				return true
			}
		}
	}
	return false
}

func firstOffer(raw json.RawMessage) (jsonLDOffer, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return jsonLDOffer{}, false
	}
	if raw[0] == '[' {
		var offers []jsonLDOffer
		if err := json.Unmarshal(raw, &offers); err != nil || len(offers) == 0 {
			return jsonLDOffer{}, false
		}
		return offers[0], true
	}
	var offer jsonLDOffer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return jsonLDOffer{}, false
	}
	return offer, true
}

// parseIdentifier accepts a JSON string or number; anything else yields "".
func parseIdentifier(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return ""
	}
	return number.String()
}

// looseName pulls a single string field out of an item that failed to decode
// as a whole, so the skip can be attributed and filtered by target.
func looseName(raw json.RawMessage, field string) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false
	}
	var name string
	if err := json.Unmarshal(fields[field], &name); err != nil {
		return "", false
	}
	name = strings.TrimSpace(name)
	return name, name != ""
}

// parseAmount accepts a JSON number or a numeric string; anything else yields nil.
func parseAmount(raw json.RawMessage) *decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if text == "" {
		return nil
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	return &amount
}

func (s *JSONLDSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
