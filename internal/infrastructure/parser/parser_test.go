package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"RefurbTracker/internal/extraction"
)

func miniTarget(t *testing.T) extraction.Target {
	t.Helper()
	target, err := extraction.CompileTarget("Product", `mac\s*mini`)
	if err != nil {
		t.Fatalf("compile target: %v", err)
	}
	return target
}

func newDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc
}

const jsonLDPage = `
<html><head>
<script type="application/ld+json">{"@type":"BreadcrumbList","name":"Mac mini"}</script>
<script type="application/ld+json">{ this is not json </script>
<script type="application/ld+json">[
  {"@type":"Product","name":"Refurbished Mac mini Apple M4 Chip with 10-Core CPU and 10-Core GPU",
   "description":"16GB unified memory 512GB SSD","sku":"FX123LL/A",
   "offers":[{"price":"509.00","priceCurrency":"USD"}]},
  {"@type":"Product","name":"Refurbished MacBook Air","sku":"MBA1","offers":{"price":899}},
  {"@type":"Product","name":"Refurbished MAC MINI Apple M2 Pro Chip with 10-Core CPU and 16-Core GPU",
   "sku":"FY456LL/A","offers":{"price":1099,"priceCurrency":"EUR"}},
  {"@type":["Product","Thing"],"name":"Mac mini without offer","sku":"NOPRICE"},
  {"@type":"Product","name":"Mac mini M4 10-core CPU 10-core GPU","sku":12345,"offers":{"price":599}},
  {"@type":"Product","name":"Mac mini broken item","description":7},
  {"@type":"Product","name":"MacBook Pro broken item","description":7}
]</script>
</head><body></body></html>`

func TestJSONLDSourceExtract(t *testing.T) {
	t.Parallel()

	records, skipped := NewJSONLDSource(nil).Extract(newDoc(t, jsonLDPage), miniTarget(t))
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	first := records[0]
	if first.Identifier != "FX123LL/A" {
		t.Fatalf("unexpected identifier: %s", first.Identifier)
	}
	if first.PriceAmount == nil || first.PriceAmount.String() != "509" {
		t.Fatalf("unexpected price: %v", first.PriceAmount)
	}
	if first.PriceCurrency != "USD" {
		t.Fatalf("unexpected currency: %s", first.PriceCurrency)
	}
	if first.Description != "16GB unified memory 512GB SSD" {
		t.Fatalf("unexpected description: %s", first.Description)
	}

	if records[1].PriceAmount == nil || records[1].PriceAmount.String() != "1099" || records[1].PriceCurrency != "EUR" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}

	if records[2].Identifier != "NOPRICE" || records[2].PriceAmount != nil {
		t.Fatalf("expected record without price, got %+v", records[2])
	}

	if records[3].Identifier != "12345" || records[3].PriceAmount == nil {
		t.Fatalf("numeric sku not kept: %+v", records[3])
	}

	if len(skipped) != 2 {
		t.Fatalf("expected 2 skips, got %+v", skipped)
	}
	if skipped[0].Name != "ld+json block 1" || skipped[1].Name != "Mac mini broken item" {
		t.Fatalf("unexpected skips: %+v", skipped)
	}
	for _, skip := range skipped {
		if skip.Reason != extraction.ReasonMalformed {
			t.Fatalf("unexpected reason: %+v", skip)
		}
	}
}

func bootstrapPage(tiles string) string {
	return `<html><body><div id="grid"></div>
<script>var other = 1;</script>
<script>
  window.REFURB_GRID_BOOTSTRAP = {"tiles": [` + tiles + `]};
  window.somethingElse = {};
</script></body></html>`
}

const bootstrapTiles = `
 {"title":" Refurbished Mac mini Apple M4 Pro Chip with 12‑Core CPU and 16‑Core GPU - 10 Gigabit Ethernet ",
  "partNumber":"G1A23LL/A",
  "price":{"currentPrice":{"raw_amount":1189.0},"priceCurrency":"USD"},
  "filters":{"dimensions":{"tsMemorySize":"24gb","dimensionCapacity":"1tb"}}},
 {"title":"Refurbished Mac mini Apple M2 Chip with 8-Core CPU and 10-Core GPU",
  "partNumber":"FMN23LL/A",
  "price":{"currentPrice":{"raw_amount":499}},
  "filters":{"dimensions":{"tsMemorySize":"8gb","dimensionCapacity":"256gb"}}},
 {"title":"Refurbished iMac","partNumber":"IM1","price":{"currentPrice":{"raw_amount":999}}},
 {"title":"Mac mini numeric part","partNumber":7,"price":{"currentPrice":{"raw_amount":549}}},
 {"title":"Mac mini broken","price":"n/a"},
 {"title":"iMac broken","price":"n/a"},
 {"partNumber":"X9","price":"n/a"}`

func TestBootstrapSourceExtract(t *testing.T) {
	t.Parallel()

	records, skipped := NewBootstrapSource("REFURB_GRID_BOOTSTRAP", nil).Extract(newDoc(t, bootstrapPage(bootstrapTiles)), miniTarget(t))
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	pro := records[0]
	if pro.Identifier != "G1A23LL/A" {
		t.Fatalf("unexpected identifier: %s", pro.Identifier)
	}
	if pro.PriceAmount == nil || pro.PriceAmount.String() != "1189" {
		t.Fatalf("unexpected price: %v", pro.PriceAmount)
	}
	wantDesc := "24GB unified memory · 1TB SSD · Refurbished Mac mini Apple M4 Pro Chip with 12‑Core CPU and 16‑Core GPU - 10 Gigabit Ethernet"
	if pro.Description != wantDesc {
		t.Fatalf("unexpected description: %q", pro.Description)
	}
	if records[1].PriceCurrency != "USD" {
		t.Fatalf("expected default currency, got %s", records[1].PriceCurrency)
	}
	if records[2].Identifier != "7" {
		t.Fatalf("numeric part number not kept: %+v", records[2])
	}

	if len(skipped) != 2 || skipped[0].Name != "Mac mini broken" || skipped[1].Name != "bootstrap tile 6" {
		t.Fatalf("unexpected skips: %+v", skipped)
	}
}

func TestBootstrapSourceSkipsGuardAssignment(t *testing.T) {
	t.Parallel()

	page := `<html><body><script>
  if (window.REFURB_GRID_BOOTSTRAP == null) window.REFURB_GRID_BOOTSTRAP = {"tiles": [
    {"title":"Mac mini M4 10-core CPU 10-core GPU","partNumber":"A1","price":{"currentPrice":{"raw_amount":599}}}]};
</script></body></html>`

	records, _ := NewBootstrapSource("REFURB_GRID_BOOTSTRAP", nil).Extract(newDoc(t, page), miniTarget(t))
	if len(records) != 1 || records[0].Identifier != "A1" {
		t.Fatalf("expected the real assignment to be used, got %+v", records)
	}
}

func TestBootstrapSourceMissingBlob(t *testing.T) {
	t.Parallel()

	records, skipped := NewBootstrapSource("REFURB_GRID_BOOTSTRAP", nil).Extract(newDoc(t, "<html><script>var x = 1;</script></html>"), miniTarget(t))
	if len(records) != 0 || len(skipped) != 0 {
		t.Fatalf("expected nothing, got %d records and %d skips", len(records), len(skipped))
	}
}

func siteExtractor(t *testing.T, order ...string) *FallbackExtractor {
	t.Helper()
	extractor, err := NewSiteExtractor(miniTarget(t), "REFURB_GRID_BOOTSTRAP", order, nil)
	if err != nil {
		t.Fatalf("NewSiteExtractor error: %v", err)
	}
	return extractor
}

func TestFallbackExtractorPrefersJSONLD(t *testing.T) {
	t.Parallel()

	page := strings.Replace(jsonLDPage, "</head>", "</head>"+bootstrapPage(bootstrapTiles), 1)
	got, err := siteExtractor(t).Extract(page)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Path != StrategyJSONLD {
		t.Fatalf("expected json-ld path, got %s", got.Path)
	}
	if len(got.Records) != 4 || len(got.Skipped) != 2 {
		t.Fatalf("expected 4 records and 2 skips, got %d and %d", len(got.Records), len(got.Skipped))
	}
}

func TestFallbackExtractorKeepsNumericSKU(t *testing.T) {
	t.Parallel()

	page := `<html><head><script type="application/ld+json">
{"@type":"Product","name":"Mac mini M4 10-core CPU 10-core GPU","sku":12345,"offers":{"price":599}}
</script></head></html>`

	got, err := siteExtractor(t).Extract(page)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Path != StrategyJSONLD || len(got.Records) != 1 || got.Records[0].Identifier != "12345" {
		t.Fatalf("expected one json-ld record with sku 12345, got %+v", got)
	}
}

func TestFallbackExtractorUsesBootstrap(t *testing.T) {
	t.Parallel()

	tiles := make([]string, 0, 5)
	for _, part := range []string{"A1", "A2", "A3", "A4", "A5"} {
		tiles = append(tiles, `{"title":"Mac mini M4 10-core CPU 10-core GPU","partNumber":"`+part+`","price":{"currentPrice":{"raw_amount":599}}}`)
	}
	page := bootstrapPage(strings.Join(tiles, ","))

	got, err := siteExtractor(t).Extract(page)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Path != StrategyBootstrap {
		t.Fatalf("expected bootstrap path, got %s", got.Path)
	}
	if len(got.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got.Records))
	}
}

func TestFallbackExtractorNothingFound(t *testing.T) {
	t.Parallel()

	got, err := siteExtractor(t).Extract("<html><body>empty</body></html>")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Path != PathNone || len(got.Records) != 0 {
		t.Fatalf("expected no records via %s, got %d via %s", PathNone, len(got.Records), got.Path)
	}
}

func TestSiteExtractorHonoursConfiguredOrder(t *testing.T) {
	t.Parallel()

	page := strings.Replace(jsonLDPage, "</head>", "</head>"+bootstrapPage(bootstrapTiles), 1)
	got, err := siteExtractor(t, StrategyBootstrap).Extract(page)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Path != StrategyBootstrap || len(got.Records) != 3 {
		t.Fatalf("expected 3 bootstrap records, got %d via %s", len(got.Records), got.Path)
	}
}

func TestSiteExtractorRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	if _, err := NewSiteExtractor(miniTarget(t), "REFURB_GRID_BOOTSTRAP", []string{"json-ld", "microdata"}, nil); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestDescribeTileWithoutDimensions(t *testing.T) {
	t.Parallel()

	if got := describeTile("Mac mini", nil); got != "Mac mini" {
		t.Fatalf("unexpected description: %q", got)
	}
}
