package webhook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// BuildMessage renders the Slack-flavoured markdown announcing new listings.
func BuildMessage(a domain.Announcement) string {
	label := a.Label
	if len(a.Products) > 1 {
		label += "s"
	}

	lines := make([]string, 0, len(a.Products)+4)
	lines = append(lines, fmt.Sprintf("🖥️ *%d %s spotted on %s!*", len(a.Products), label, a.Site), "")
	for _, p := range a.Products {
		line := fmt.Sprintf("• *%s* — %s", FormatPrice(p.Entry.CurrentPrice, p.Currency), p.Name)
		if specs := specLine(p.Entry); specs != "" {
			line += "\n    " + specs
		}
		lines = append(lines, line)
	}
	if a.ListingURL != "" {
		lines = append(lines, "", "👉 "+a.ListingURL)
	}
	return strings.Join(lines, "\n")
}

func specLine(e domain.HistoryEntry) string {
	var parts []string
	if e.MemorySize != "" {
		parts = append(parts, e.MemorySize+" RAM")
	}
	if e.StorageSize != "" {
		parts = append(parts, e.StorageSize+" SSD")
	}
	if e.NetworkClass != "" {
		parts = append(parts, e.NetworkClass)
	}
	return strings.Join(parts, " · ")
}

// FormatPrice prints an amount with a currency symbol, thousands separators and two decimals.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	prefix, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		prefix = strings.ToUpper(currency) + " "
	}

	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + prefix + grouped.String() + "." + frac
}
