package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/history"
	"RefurbTracker/internal/ports"
)

// Observer derives typed attributes from a raw record.
type Observer interface {
	Observe(record domain.RawProductRecord) domain.Observation
}

// Site binds one listing page to its extractor and history store.
type Site struct {
	Name      string
	URL       string
	Source    string
	Label     string
	Extractor ports.ProductExtractor
	Store     ports.HistoryStore
}

// PipelineDeps wires all driven adapters into the tracking pipeline.
type PipelineDeps struct {
	Sites    []Site
	Fetcher  ports.PageFetcher
	Observer Observer
	Mirror   ports.HistoryMirror
	Notifier ports.Notifier
	Location *time.Location
	Out      io.Writer
	Logger   *slog.Logger
}

// Pipeline implements the fetch, extract, reconcile and persist workflow.
type Pipeline struct {
	sites    []Site
	fetcher  ports.PageFetcher
	observer Observer
	mirror   ports.HistoryMirror
	notifier ports.Notifier
	location *time.Location
	out      io.Writer
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &Pipeline{
		sites:    deps.Sites,
		fetcher:  deps.Fetcher,
		observer: deps.Observer,
		mirror:   deps.Mirror,
		notifier: deps.Notifier,
		location: loc,
		out:      out,
		logger:   deps.Logger,
	}
}

// Run processes every configured site once, in order. The first fatal
// error aborts the run; sites already processed keep their saved history.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (domain.RunSummary, error) {
	var total domain.RunSummary
	if p.fetcher == nil || p.observer == nil {
		return total, fmt.Errorf("pipeline is not configured")
	}

	today := domain.DayOf(now, p.location)
	for _, site := range p.sites {
		summary, err := p.runSite(ctx, site, today)
		if err != nil {
			return total, fmt.Errorf("site %s: %w", site.Name, err)
		}
		total.Merge(summary)
	}

	fmt.Fprintf(p.out, "Done: %d updated, %d new — %d total products\n",
		len(total.Updated), len(total.Added), total.Total)
	return total, nil
}

func (p *Pipeline) runSite(ctx context.Context, site Site, today domain.Day) (domain.RunSummary, error) {
	runID := uuid.NewString()
	log := p.logger
	if log != nil {
		log = log.With("site", site.Name, "run_id", runID)
	}

	collection, err := site.Store.Load(ctx, today)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("load history: %w", err)
	}

	document, err := p.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("fetch listing: %w", err)
	}

	extracted, err := site.Extractor.Extract(document)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("extract products: %w", err)
	}
	records, path := extracted.Records, extracted.Path
	if len(records) == 0 {
		for _, skip := range extracted.Skipped {
			p.warn(log, "observation skipped", "product", skip.Name, "reason", skip.Reason)
		}
		p.warn(log, "no products found, history left untouched", "path", path)
		return domain.RunSummary{Skipped: extracted.Skipped, Total: len(collection.Entries)}, nil
	}

	observations := make([]domain.Observation, 0, len(records))
	for _, record := range records {
		observations = append(observations, p.observer.Observe(record))
	}

	updated, summary := history.Reconcile(collection, observations, today)
	skipped := make([]domain.Skip, 0, len(extracted.Skipped)+len(summary.Skipped))
	skipped = append(skipped, extracted.Skipped...)
	summary.Skipped = append(skipped, summary.Skipped...)
	for _, skip := range summary.Skipped {
		p.warn(log, "observation skipped", "product", skip.Name, "reason", skip.Reason)
	}

	if err := site.Store.Save(ctx, updated); err != nil {
		return domain.RunSummary{}, fmt.Errorf("save history: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.Mirror(ctx, runID, site.Name, updated); err != nil {
			p.warn(log, "history mirror failed", "error", err)
		}
	}

	if log != nil {
		log.Info("run complete",
			"added", len(summary.Added),
			"updated", len(summary.Updated),
			"skipped", len(summary.Skipped),
			"total", summary.Total,
			"path", path,
		)
	}

	if p.notifier != nil && len(summary.Added) > 0 {
		if err := p.notifier.Announce(ctx, announcementFor(site, records, summary.Added)); err != nil {
			return summary, fmt.Errorf("notify: %w", err)
		}
	}

	return summary, nil
}

func announcementFor(site Site, records []domain.RawProductRecord, added []domain.HistoryEntry) domain.Announcement {
	byRef := make(map[string]domain.RawProductRecord, len(records))
	for _, r := range records {
		ref := strings.TrimSpace(r.Identifier)
		if _, ok := byRef[ref]; !ok {
			byRef[ref] = r
		}
	}

	a := domain.Announcement{
		Site:       site.Source,
		Label:      site.Label,
		ListingURL: site.URL,
		Products:   make([]domain.AnnouncedProduct, 0, len(added)),
	}
	for _, entry := range added {
		rec := byRef[entry.ReferenceID]
		name := rec.Name
		if name == "" {
			name = entry.ReferenceID
		}
		a.Products = append(a.Products, domain.AnnouncedProduct{
			Name:     name,
			Currency: rec.PriceCurrency,
			Entry:    entry,
		})
	}
	return a
}

func (p *Pipeline) warn(log *slog.Logger, msg string, args ...interface{}) {
	if log != nil {
		log.Warn(msg, args...)
	}
}
