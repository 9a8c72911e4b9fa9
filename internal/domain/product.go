package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrFetch marks transport failures and non-success responses.
	ErrFetch = errors.New("fetch listing page")
	// ErrNoDocument marks a response body that could not be read or parsed.
	ErrNoDocument = errors.New("listing document unreadable")
)

const dayLayout = "2006-01-02"

// Day is a calendar day in 2006-01-02 form; lexical order is chronological.
type Day string

// DayOf converts an instant to the calendar day observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(dayLayout))
}

// Valid reports whether the day parses as a calendar date.
func (d Day) Valid() bool {
	_, err := time.Parse(dayLayout, string(d))
	return err == nil
}

// RawProductRecord is one listing item as found in the page, before normalization.
type RawProductRecord struct {
	Name          string
	Description   string
	Identifier    string
	PriceAmount   *decimal.Decimal
	PriceCurrency string
}

// Extraction is what one pass over a listing document produced: the records
// of the winning strategy, its name, and items that could not be read.
type Extraction struct {
	Records []RawProductRecord
	Path    string
	Skipped []Skip
}

// NormalizedAttributes are the typed fields derived from a record's text.
type NormalizedAttributes struct {
	ChipFamily   string
	Generation   int
	CPUCores     int
	GPUCores     int
	MemorySize   string
	StorageSize  string
	NetworkClass string
}

// Observation pairs a record seen today with its derived attributes.
type Observation struct {
	Record     RawProductRecord
	Attributes NormalizedAttributes
}

// Sighting is a single dated price point.
type Sighting struct {
	Date  Day
	Price decimal.Decimal
}

// HistoryEntry tracks one product configuration across runs.
type HistoryEntry struct {
	ReferenceID  string
	ChipFamily   string
	CPUCores     int
	GPUCores     int
	MemorySize   string
	StorageSize  string
	NetworkClass string

	CurrentPrice    decimal.Decimal
	ListPrice       *decimal.Decimal
	DiscountPercent *decimal.Decimal

	FirstObserved Day
	LastObserved  Day
	Sightings     []Sighting
}

// Clone returns a deep copy so callers can mutate it freely.
func (e HistoryEntry) Clone() HistoryEntry {
	out := e
	if e.Sightings != nil {
		out.Sightings = make([]Sighting, len(e.Sightings))
		copy(out.Sightings, e.Sightings)
	}
	if e.ListPrice != nil {
		v := *e.ListPrice
		out.ListPrice = &v
	}
	if e.DiscountPercent != nil {
		v := *e.DiscountPercent
		out.DiscountPercent = &v
	}
	return out
}

// HistoryCollection is the persisted unit: every entry tracked for one source.
type HistoryCollection struct {
	CollectedAt Day
	SourceURL   string
	Entries     []HistoryEntry
}

// Skip explains why an observation did not reach the history.
type Skip struct {
	Name   string
	Reason string
}

// RunSummary counts what a reconciliation did.
type RunSummary struct {
	Added   []HistoryEntry
	Updated []string
	Skipped []Skip
	Total   int
}

// Merge folds another site's summary into s.
func (s *RunSummary) Merge(other RunSummary) {
	s.Added = append(s.Added, other.Added...)
	s.Updated = append(s.Updated, other.Updated...)
	s.Skipped = append(s.Skipped, other.Skipped...)
	s.Total += other.Total
}

// AnnouncedProduct is a newly listed product as shown in a notification.
type AnnouncedProduct struct {
	Name     string
	Currency string
	Entry    HistoryEntry
}

// Announcement is the payload handed to a Notifier after a run.
type Announcement struct {
	Site       string
	Label      string
	ListingURL string
	Products   []AnnouncedProduct
}
