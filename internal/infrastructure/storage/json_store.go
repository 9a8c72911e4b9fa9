package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/ports"
)

// JSONStore persists one site's history as an indented JSON file that the
// dashboard reads directly.
type JSONStore struct {
	path   string
	source string
	logger *slog.Logger
}

var _ ports.HistoryStore = (*JSONStore)(nil)

// NewJSONStore binds a file path; source fills an empty collection's header.
func NewJSONStore(path, source string, log *slog.Logger) *JSONStore {
	return &JSONStore{path: path, source: source, logger: log}
}

// amount writes a decimal as a bare JSON number.
type amount struct {
	decimal.Decimal
}

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

type fileSighting struct {
	Date  domain.Day `json:"date"`
	Price amount     `json:"price"`
}

type fileEntry struct {
	Ref         string         `json:"ref"`
	Chip        string         `json:"chip"`
	CPUCores    int            `json:"cpuCores"`
	GPUCores    int            `json:"gpuCores"`
	RAM         string         `json:"ram"`
	Storage     string         `json:"storage"`
	Ethernet    string         `json:"ethernet"`
	RefurbPrice amount         `json:"refurbPrice"`
	RetailPrice *amount        `json:"retailPrice"`
	Discount    *amount        `json:"discount"`
	FirstSeen   domain.Day     `json:"firstSeen,omitempty"`
	LastSeen    domain.Day     `json:"lastSeen"`
	Sightings   []fileSighting `json:"sightings,omitempty"`
}

type historyFile struct {
	CollectedAt domain.Day  `json:"collectedAt"`
	Source      string      `json:"source"`
	Products    []fileEntry `json:"products"`
}

// Load reads the history file. A missing or unparsable file yields an empty
// collection stamped with today and the configured source.
func (s *JSONStore) Load(_ context.Context, today domain.Day) (domain.HistoryCollection, error) {
	empty := domain.HistoryCollection{CollectedAt: today, SourceURL: s.source}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.info("history file missing, starting empty", "path", s.path)
		return empty, nil
	}
	if err != nil {
		s.warn("history file unreadable, starting empty", "path", s.path, "error", err)
		return empty, nil
	}

	var file historyFile
	if err := json.Unmarshal(raw, &file); err != nil {
		s.warn("history file unparsable, starting empty", "path", s.path, "error", err)
		return empty, nil
	}

	collection := domain.HistoryCollection{
		CollectedAt: file.CollectedAt,
		SourceURL:   file.Source,
		Entries:     make([]domain.HistoryEntry, 0, len(file.Products)),
	}
	if collection.CollectedAt == "" {
		collection.CollectedAt = today
	}
	if collection.SourceURL == "" {
		collection.SourceURL = s.source
	}
	for _, p := range file.Products {
		entry, dropped, ok := sanitizeDays(p.toDomain())
		if !ok {
			s.warn("history entry has no usable date, dropping", "ref", p.Ref, "lastSeen", p.LastSeen)
			continue
		}
		if dropped > 0 {
			s.warn("malformed sighting dates removed", "ref", p.Ref, "dropped", dropped)
		}
		collection.Entries = append(collection.Entries, entry)
	}
	return collection, nil
}

// sanitizeDays removes sightings with malformed dates and repairs the entry's
// bounds from what is left. It reports false when the entry cannot be placed
// on any day.
func sanitizeDays(e domain.HistoryEntry) (domain.HistoryEntry, int, bool) {
	dropped := 0
	if e.Sightings != nil {
		kept := make([]domain.Sighting, 0, len(e.Sightings))
		for _, sg := range e.Sightings {
			if !sg.Date.Valid() {
				dropped++
				continue
			}
			kept = append(kept, sg)
		}
		e.Sightings = kept
	}

	if e.FirstObserved != "" && !e.FirstObserved.Valid() {
		e.FirstObserved = ""
	}
	if !e.LastObserved.Valid() {
		n := len(e.Sightings)
		if n == 0 {
			return e, dropped, false
		}
		e.LastObserved = e.Sightings[n-1].Date
	}
	return e, dropped, true
}

// Save overwrites the file atomically: write a temp file beside it, then rename.
func (s *JSONStore) Save(_ context.Context, collection domain.HistoryCollection) error {
	file := historyFile{
		CollectedAt: collection.CollectedAt,
		Source:      collection.SourceURL,
		Products:    make([]fileEntry, 0, len(collection.Entries)),
	}
	for _, e := range collection.Entries {
		file.Products = append(file.Products, fromDomain(e))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}

	return nil
}

func (p fileEntry) toDomain() domain.HistoryEntry {
	e := domain.HistoryEntry{
		ReferenceID:   p.Ref,
		ChipFamily:    p.Chip,
		CPUCores:      p.CPUCores,
		GPUCores:      p.GPUCores,
		MemorySize:    p.RAM,
		StorageSize:   p.Storage,
		NetworkClass:  p.Ethernet,
		CurrentPrice:  p.RefurbPrice.Decimal,
		FirstObserved: p.FirstSeen,
		LastObserved:  p.LastSeen,
	}
	if p.RetailPrice != nil {
		v := p.RetailPrice.Decimal
		e.ListPrice = &v
	}
	if p.Discount != nil {
		v := p.Discount.Decimal
		e.DiscountPercent = &v
	}
	if p.Sightings != nil {
		e.Sightings = make([]domain.Sighting, 0, len(p.Sightings))
		for _, s := range p.Sightings {
			e.Sightings = append(e.Sightings, domain.Sighting{Date: s.Date, Price: s.Price.Decimal})
		}
	}
	return e
}

func fromDomain(e domain.HistoryEntry) fileEntry {
	p := fileEntry{
		Ref:         e.ReferenceID,
		Chip:        e.ChipFamily,
		CPUCores:    e.CPUCores,
		GPUCores:    e.GPUCores,
		RAM:         e.MemorySize,
		Storage:     e.StorageSize,
		Ethernet:    e.NetworkClass,
		RefurbPrice: amount{e.CurrentPrice},
		FirstSeen:   e.FirstObserved,
		LastSeen:    e.LastObserved,
		Sightings:   make([]fileSighting, 0, len(e.Sightings)),
	}
	if e.ListPrice != nil {
		p.RetailPrice = &amount{*e.ListPrice}
	}
	if e.DiscountPercent != nil {
		p.Discount = &amount{*e.DiscountPercent}
	}
	for _, s := range e.Sightings {
		p.Sightings = append(p.Sightings, fileSighting{Date: s.Date, Price: amount{s.Price}})
	}
	return p
}

func (s *JSONStore) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *JSONStore) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
