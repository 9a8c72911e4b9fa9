// Package history merges freshly observed listings into the persisted
// sighting history. Everything here is pure: no I/O, inputs are never
// mutated.
package history

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
)

const (
	ReasonNoIdentifier = "missing identifier"
	ReasonNoPrice      = "missing price"
	ReasonStale        = "older than last sighting"
)

// Upgrade brings an entry written by an older schema up to the current one:
// a missing sighting list becomes a single sighting at the last observed
// price, and a missing first-observed day is taken from the first sighting.
func Upgrade(entry domain.HistoryEntry) domain.HistoryEntry {
	out := entry.Clone()
	if len(out.Sightings) == 0 {
		out.Sightings = []domain.Sighting{{Date: out.LastObserved, Price: out.CurrentPrice}}
	}
	if out.FirstObserved == "" {
		out.FirstObserved = out.Sightings[0].Date
	}
	return out
}

// Reconcile merges today's observations into collection and returns the new
// collection, sorted by current price, along with what changed.
func Reconcile(collection domain.HistoryCollection, observations []domain.Observation, today domain.Day) (domain.HistoryCollection, domain.RunSummary) {
	byRef := make(map[string]*domain.HistoryEntry, len(collection.Entries))
	order := make([]string, 0, len(collection.Entries))
	for _, stored := range collection.Entries {
		entry := Upgrade(stored)
		if _, seen := byRef[entry.ReferenceID]; !seen {
			order = append(order, entry.ReferenceID)
		}
		byRef[entry.ReferenceID] = &entry
	}

	var (
		summary domain.RunSummary
		touched = map[string]bool{}
	)

	for _, obs := range observations {
		ref := strings.TrimSpace(obs.Record.Identifier)
		if ref == "" {
			summary.Skipped = append(summary.Skipped, domain.Skip{Name: obs.Record.Name, Reason: ReasonNoIdentifier})
			continue
		}
		if obs.Record.PriceAmount == nil {
			summary.Skipped = append(summary.Skipped, domain.Skip{Name: ref, Reason: ReasonNoPrice})
			continue
		}
		price := *obs.Record.PriceAmount

		if existing, ok := byRef[ref]; ok {
			if lastDay(*existing) > today {
				summary.Skipped = append(summary.Skipped, domain.Skip{Name: ref, Reason: ReasonStale})
				continue
			}
			addSighting(existing, today, price)
			if !touched[ref] {
				summary.Updated = append(summary.Updated, ref)
				touched[ref] = true
			}
			continue
		}

		entry := newEntry(ref, obs.Attributes, today, obs.Record)
		byRef[ref] = &entry
		order = append(order, ref)
		touched[ref] = true
		summary.Added = append(summary.Added, entry)
	}

	entries := make([]domain.HistoryEntry, 0, len(order))
	for _, ref := range order {
		entries = append(entries, *byRef[ref])
	}
	sortByPrice(entries)

	// Added entries may have been updated again by a duplicate observation.
	for i, added := range summary.Added {
		summary.Added[i] = byRef[added.ReferenceID].Clone()
	}
	summary.Total = len(entries)

	return domain.HistoryCollection{
		CollectedAt: today,
		SourceURL:   collection.SourceURL,
		Entries:     entries,
	}, summary
}

func newEntry(ref string, attrs domain.NormalizedAttributes, today domain.Day, rec domain.RawProductRecord) domain.HistoryEntry {
	price := *rec.PriceAmount
	return domain.HistoryEntry{
		ReferenceID:   ref,
		ChipFamily:    attrs.ChipFamily,
		CPUCores:      attrs.CPUCores,
		GPUCores:      attrs.GPUCores,
		MemorySize:    attrs.MemorySize,
		StorageSize:   attrs.StorageSize,
		NetworkClass:  attrs.NetworkClass,
		CurrentPrice:  price,
		FirstObserved: today,
		LastObserved:  today,
		Sightings:     []domain.Sighting{{Date: today, Price: price}},
	}
}

// addSighting overwrites today's sighting if one exists, otherwise appends.
func addSighting(entry *domain.HistoryEntry, today domain.Day, price decimal.Decimal) {
	if n := len(entry.Sightings); n > 0 && entry.Sightings[n-1].Date == today {
		entry.Sightings[n-1].Price = price
	} else {
		entry.Sightings = append(entry.Sightings, domain.Sighting{Date: today, Price: price})
	}
	entry.LastObserved = today
	entry.CurrentPrice = price
}

func lastDay(entry domain.HistoryEntry) domain.Day {
	if n := len(entry.Sightings); n > 0 {
		return entry.Sightings[n-1].Date
	}
	return entry.LastObserved
}

// sortByPrice orders ascending by current price; reference id breaks ties so
// output is stable across runs.
func sortByPrice(entries []domain.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].CurrentPrice.Cmp(entries[j].CurrentPrice); c != 0 {
			return c < 0
		}
		return entries[i].ReferenceID < entries[j].ReferenceID
	})
}
