package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
)

func announcement(n int) domain.Announcement {
	a := domain.Announcement{
		Site:       "apple.com/shop/refurbished",
		Label:      "Mac Mini",
		ListingURL: "https://www.apple.com/shop/refurbished/mac/mac-mini",
	}
	for i := 0; i < n; i++ {
		a.Products = append(a.Products, domain.AnnouncedProduct{
			Name:     "Refurbished Mac mini Apple M4 Pro Chip",
			Currency: "USD",
			Entry: domain.HistoryEntry{
				ReferenceID:  "FX1",
				CurrentPrice: decimal.RequireFromString("1189.5"),
				MemorySize:   "24GB",
				StorageSize:  "512GB",
				NetworkClass: "10GbE",
			},
		})
	}
	return a
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"599", "USD", "$599.00"},
		{"1189.5", "", "$1,189.50"},
		{"1234567.891", "EUR", "€1,234,567.89"},
		{"49", "gbp", "£49.00"},
		{"899", "CAD", "CAD 899.00"},
	}
	for _, tc := range cases {
		if got := FormatPrice(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Fatalf("FormatPrice(%s, %s) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg := BuildMessage(announcement(2))
	lines := strings.Split(msg, "\n")

	if lines[0] != "🖥️ *2 Mac Minis spotted on apple.com/shop/refurbished!*" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[2] != "• *$1,189.50* — Refurbished Mac mini Apple M4 Pro Chip" {
		t.Fatalf("unexpected item line: %q", lines[2])
	}
	if lines[3] != "    24GB RAM · 512GB SSD · 10GbE" {
		t.Fatalf("unexpected spec line: %q", lines[3])
	}
	if lines[len(lines)-1] != "👉 https://www.apple.com/shop/refurbished/mac/mac-mini" {
		t.Fatalf("unexpected footer: %q", lines[len(lines)-1])
	}

	single := BuildMessage(announcement(1))
	if !strings.HasPrefix(single, "🖥️ *1 Mac Mini spotted") {
		t.Fatalf("singular label expected: %q", single)
	}
}

func TestAnnouncePostsJSON(t *testing.T) {
	t.Parallel()

	var payload map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil, nil)
	if err := n.Announce(context.Background(), announcement(1)); err != nil {
		t.Fatalf("Announce error: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type: %q", contentType)
	}
	if !strings.Contains(payload["text"], "1 Mac Mini spotted") {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestAnnounceReportsWebhookFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL, nil, nil).Announce(context.Background(), announcement(1))
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("expected webhook error, got %v", err)
	}
}

func TestAnnounceWithoutURLPrints(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := NewNotifier("", &out, nil).Announce(context.Background(), announcement(1)); err != nil {
		t.Fatalf("Announce error: %v", err)
	}
	if !strings.Contains(out.String(), "1 Mac Mini spotted") {
		t.Fatalf("message not printed: %q", out.String())
	}

	out.Reset()
	if err := NewNotifier("", &out, nil).Announce(context.Background(), domain.Announcement{}); err != nil {
		t.Fatalf("Announce error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("empty announcement should print nothing: %q", out.String())
	}
}
