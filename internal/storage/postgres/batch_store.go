// Package postgres provides a Postgres-backed crawler.Store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table naming.
type Config struct {
	DSN string
	// TablePrefix names the two tables: <prefix>_batches and <prefix>_items.
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// BatchStore keeps one row per (topic, modifier) batch and one row per item.
type BatchStore struct {
	pool    pool
	batches string
	items   string
	now     func() time.Time
}

// NewBatchStore connects to Postgres using cfg.
func NewBatchStore(ctx context.Context, cfg Config) (*BatchStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewBatchStoreWithPool(p, cfg.TablePrefix)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewBatchStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewBatchStoreWithPool(p pool, prefix string) (*BatchStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if prefix == "" {
		prefix = "crawl"
	}
	if !validTableName.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &BatchStore{
		pool:    p,
		batches: prefix + "_batches",
		items:   prefix + "_items",
		now:     time.Now,
	}, nil
}

// Close releases the underlying pool resources.
func (s *BatchStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *BatchStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	topic      TEXT NOT NULL,
	modifier   TEXT NOT NULL,
	written_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (topic, modifier)
);
CREATE TABLE IF NOT EXISTS %[2]s (
	topic    TEXT NOT NULL,
	modifier TEXT NOT NULL,
	position INT  NOT NULL,
	price    TEXT NOT NULL DEFAULT '',
	image    TEXT NOT NULL DEFAULT '',
	rating   TEXT NOT NULL DEFAULT '',
	title    TEXT NOT NULL DEFAULT '',
	href     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (topic, modifier, position),
	FOREIGN KEY (topic, modifier) REFERENCES %[1]s (topic, modifier) ON DELETE CASCADE
)`, s.batches, s.items)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// WriteBatch replaces the stored batch for (topic, modifier) in one transaction.
func (s *BatchStore) WriteBatch(ctx context.Context, batch crawler.Batch) error {
	modifier := crawler.PartitionName(batch.Topic, batch.Modifier)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch write: %w", err)
	}

	upsert := fmt.Sprintf(`
INSERT INTO %s (topic, modifier, written_at) VALUES ($1, $2, $3)
ON CONFLICT (topic, modifier) DO UPDATE SET written_at = EXCLUDED.written_at`, s.batches)
	if _, err := tx.Exec(ctx, upsert, batch.Topic, modifier, s.now().UTC()); err != nil {
		return rollback(ctx, tx, fmt.Errorf("upsert batch: %w", err))
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE topic = $1 AND modifier = $2`, s.items)
	if _, err := tx.Exec(ctx, del, batch.Topic, modifier); err != nil {
		return rollback(ctx, tx, fmt.Errorf("clear batch items: %w", err))
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (topic, modifier, position, price, image, rating, title, href)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.items)
	for i, item := range batch.Items {
		v := item.Stored()
		if _, err := tx.Exec(ctx, insert, batch.Topic, modifier, i, v.Price, v.Image, v.Rating, v.Title, v.Href); err != nil {
			return rollback(ctx, tx, fmt.Errorf("insert item %d: %w", i, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch write: %w", err)
	}
	return nil
}

// ReadBatch returns items in stored order, or crawler.ErrNotFound.
func (s *BatchStore) ReadBatch(ctx context.Context, topic, modifier string) ([]crawler.StoredItem, error) {
	modifier = crawler.PartitionName(topic, modifier)
	var exists bool
	probe := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE topic = $1 AND modifier = $2)`, s.batches)
	if err := s.pool.QueryRow(ctx, probe, topic, modifier).Scan(&exists); err != nil {
		return nil, fmt.Errorf("probe batch: %w", err)
	}
	if !exists {
		return nil, crawler.ErrNotFound
	}

	query := fmt.Sprintf(`
SELECT price, image, rating, title, href FROM %s
WHERE topic = $1 AND modifier = $2 ORDER BY position`, s.items)
	rows, err := s.pool.Query(ctx, query, topic, modifier)
	if err != nil {
		return nil, fmt.Errorf("query batch items: %w", err)
	}
	defer rows.Close()

	items := []crawler.StoredItem{}
	for rows.Next() {
		var it crawler.StoredItem
		if err := rows.Scan(&it.Price, &it.Image, &it.Rating, &it.Title, &it.Href); err != nil {
			return nil, fmt.Errorf("scan batch item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch items: %w", err)
	}
	return items, nil
}

// Topics lists stored topics in name order.
func (s *BatchStore) Topics(ctx context.Context) ([]string, error) {
	return s.list(ctx, fmt.Sprintf(`SELECT DISTINCT topic FROM %s ORDER BY topic`, s.batches))
}

// Modifiers lists the stored modifiers of topic in name order.
func (s *BatchStore) Modifiers(ctx context.Context, topic string) ([]string, error) {
	return s.list(ctx, fmt.Sprintf(`SELECT modifier FROM %s WHERE topic = $1 ORDER BY modifier`, s.batches), topic)
}

func (s *BatchStore) list(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return out, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
