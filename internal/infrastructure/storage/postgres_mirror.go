package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/ports"
)

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS tracked_products (
  site text NOT NULL,
  ref text NOT NULL,
  chip text NOT NULL,
  cpu_cores int NOT NULL DEFAULT 0,
  gpu_cores int NOT NULL DEFAULT 0,
  ram text NOT NULL DEFAULT '',
  storage text NOT NULL DEFAULT '',
  ethernet text NOT NULL DEFAULT '',
  current_price numeric(12,2) NOT NULL,
  list_price numeric(12,2),
  discount_pct numeric(5,2),
  first_seen date NOT NULL,
  last_seen date NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (site, ref)
);

CREATE TABLE IF NOT EXISTS product_sightings (
  site text NOT NULL,
  ref text NOT NULL,
  day date NOT NULL,
  price numeric(12,2) NOT NULL,
  PRIMARY KEY (site, ref, day)
);

CREATE TABLE IF NOT EXISTS tracker_runs (
  run_id uuid PRIMARY KEY,
  site text NOT NULL,
  collected_at date NOT NULL,
  products int NOT NULL,
  finished_at timestamptz NOT NULL DEFAULT now()
);
`

// PostgresMirror copies reconciled history into Postgres for ad-hoc queries.
// The JSON file stays authoritative.
type PostgresMirror struct {
	pool   *pgxpool.Pool
	psql   sq.StatementBuilderType
	logger *slog.Logger
}

var _ ports.HistoryMirror = (*PostgresMirror)(nil)

// NewPostgresMirror wires a pgx pool; a nil pool turns Mirror into a no-op.
func NewPostgresMirror(pool *pgxpool.Pool, log *slog.Logger) *PostgresMirror {
	return &PostgresMirror{
		pool:   pool,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: log,
	}
}

// ConnectPostgres opens and pings a pool.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the mirror tables if they do not exist.
func (m *PostgresMirror) EnsureSchema(ctx context.Context) error {
	if m.pool == nil {
		return nil
	}
	if _, err := m.pool.Exec(ctx, mirrorSchema); err != nil {
		return fmt.Errorf("ensure mirror schema: %w", err)
	}
	return nil
}

// Mirror upserts every entry and sighting of collection in one transaction.
func (m *PostgresMirror) Mirror(ctx context.Context, runID, site string, collection domain.HistoryCollection) error {
	if m.pool == nil {
		return nil
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, entry := range collection.Entries {
		query, args, err := m.productUpsert(site, entry)
		if err != nil {
			return fmt.Errorf("build product upsert %s: %w", entry.ReferenceID, err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert product %s: %w", entry.ReferenceID, err)
		}

		if len(entry.Sightings) == 0 {
			continue
		}
		query, args, err = m.sightingsUpsert(site, entry)
		if err != nil {
			return fmt.Errorf("build sightings upsert %s: %w", entry.ReferenceID, err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert sightings %s: %w", entry.ReferenceID, err)
		}
	}

	query, args, err := m.runInsert(runID, site, collection)
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mirror tx: %w", err)
	}

	if m.logger != nil {
		m.logger.Debug("history mirrored", "site", site, "products", len(collection.Entries), "run_id", runID)
	}
	return nil
}

func (m *PostgresMirror) productUpsert(site string, e domain.HistoryEntry) (string, []interface{}, error) {
	return m.psql.Insert("tracked_products").
		Columns("site", "ref", "chip", "cpu_cores", "gpu_cores", "ram", "storage", "ethernet",
			"current_price", "list_price", "discount_pct", "first_seen", "last_seen", "updated_at").
		Values(site, e.ReferenceID, e.ChipFamily, e.CPUCores, e.GPUCores, e.MemorySize, e.StorageSize, e.NetworkClass,
			e.CurrentPrice.String(), nullableAmount(e.ListPrice), nullableAmount(e.DiscountPercent),
			string(e.FirstObserved), string(e.LastObserved), sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (site, ref) DO UPDATE
              SET current_price = EXCLUDED.current_price,
                  list_price = EXCLUDED.list_price,
                  discount_pct = EXCLUDED.discount_pct,
                  first_seen = EXCLUDED.first_seen,
                  last_seen = EXCLUDED.last_seen,
                  updated_at = NOW()`).
		ToSql()
}

func (m *PostgresMirror) sightingsUpsert(site string, e domain.HistoryEntry) (string, []interface{}, error) {
	insert := m.psql.Insert("product_sightings").Columns("site", "ref", "day", "price")
	for _, s := range e.Sightings {
		insert = insert.Values(site, e.ReferenceID, string(s.Date), s.Price.String())
	}
	return insert.Suffix("ON CONFLICT (site, ref, day) DO UPDATE SET price = EXCLUDED.price").ToSql()
}

func (m *PostgresMirror) runInsert(runID, site string, c domain.HistoryCollection) (string, []interface{}, error) {
	return m.psql.Insert("tracker_runs").
		Columns("run_id", "site", "collected_at", "products").
		Values(runID, site, string(c.CollectedAt), len(c.Entries)).
		ToSql()
}

func nullableAmount(v *decimal.Decimal) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}
