package ports

import (
	"context"

	"RefurbTracker/internal/domain"
)

// PageFetcher retrieves the raw listing document for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ProductExtractor turns a raw document into product records and names the path that produced them.
type ProductExtractor interface {
	Extract(document string) (domain.Extraction, error)
}

// HistoryStore loads and persists the sighting history of one site.
type HistoryStore interface {
	Load(ctx context.Context, today domain.Day) (domain.HistoryCollection, error)
	Save(ctx context.Context, collection domain.HistoryCollection) error
}

// HistoryMirror copies a reconciled collection into secondary storage.
type HistoryMirror interface {
	Mirror(ctx context.Context, runID, site string, collection domain.HistoryCollection) error
}

// Notifier announces newly listed products.
type Notifier interface {
	Announce(ctx context.Context, announcement domain.Announcement) error
}
