// Package sqlstore stores pagination entries in a relational database through bun.
//
// Two tables are used: paginate_entries holds one row per result set,
// paginate_items one row per item keyed by (token, position). Get reads a
// page with a position range query, so only the requested items are loaded.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/dav"
	"github.com/marmos91/dittodav/pkg/paginate"
)

const backendName = "sql"

// insertBatchSize is the number of item rows sent per INSERT.
const insertBatchSize = 500

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures the SQL store.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`

	// DSN is passed to the driver unchanged.
	DSN string `mapstructure:"dsn" validate:"required"`

	// MaxOpenConns limits the connection pool. SQLite always uses one
	// connection.
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"omitempty,gte=1"`
}

type entryModel struct {
	bun.BaseModel `bun:"table:paginate_entries"`

	Token     string `bun:"token,pk"`
	URL       string `bun:"url,notnull"`
	CreatedAt int64  `bun:"created_at,notnull"`
	Total     int    `bun:"total,notnull"`
}

type itemModel struct {
	bun.BaseModel `bun:"table:paginate_items"`

	Token    string `bun:"token,pk"`
	Position int    `bun:"position,pk"`
	Data     []byte `bun:"data,notnull"`
}

// Store is a paginate.Store backed by SQLite or PostgreSQL.
type Store struct {
	db    *bun.DB
	codec paginate.Codec
	opts  paginate.Options
}

// New connects to the database and creates the tables if needed.
func New(ctx context.Context, cfg Config, codec paginate.Codec, opts paginate.Options) (*Store, error) {
	opts.ApplyDefaults()
	if codec == nil {
		codec = paginate.XDRCodec{}
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, paginate.NewStoreError(backendName, "open", err)
		}
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, paginate.NewStoreError(backendName, "open", err)
		}
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	s := &Store{db: db, codec: codec, opts: opts}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, paginate.NewStoreError(backendName, "migrate", err)
	}

	logger.Info("Pagination store: %s database ready (codec %s)", cfg.Driver, codec.Name())
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*entryModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create paginate_entries: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*itemModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create paginate_items: %w", err)
	}
	_, err := s.db.NewCreateIndex().
		Model((*entryModel)(nil)).
		Index("paginate_entries_created_at_idx").
		IfNotExists().
		Column("created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create created_at index: %w", err)
	}
	return nil
}

// Store encodes every item before touching the database, then writes the
// items and the entry row in one transaction. The transaction never waits
// on items, and a failed or partial Store leaves nothing behind.
func (s *Store) Store(ctx context.Context, url string, items iter.Seq2[dav.ResultItem, error]) (string, int, error) {
	token, err := s.opts.NewToken()
	if err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}

	// Errors from items and the codec are returned as they are; only
	// database failures are wrapped.
	var rows []itemModel
	for it, err := range items {
		if err != nil {
			return "", 0, err
		}
		data, err := s.codec.Encode(it)
		if err != nil {
			return "", 0, err
		}
		rows = append(rows, itemModel{Token: token, Position: len(rows), Data: data})
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	total := len(rows)

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < total; start += insertBatchSize {
			batch := rows[start:min(start+insertBatchSize, total)]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return err
			}
		}

		entry := &entryModel{
			Token:     token,
			URL:       url,
			CreatedAt: s.opts.Clock.Now().UnixNano(),
			Total:     total,
		}
		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
	if err != nil {
		return "", 0, paginate.NewStoreError(backendName, "store", err)
	}
	return token, total, nil
}

func (s *Store) Get(ctx context.Context, url, token string, offset, count int) ([]dav.ResultItem, error) {
	if token == "" {
		return nil, nil
	}

	var entry entryModel
	err := s.db.NewSelect().Model(&entry).Where("token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, paginate.NewStoreError(backendName, "get", err)
	}
	if entry.URL != url || s.opts.Expired(time.Unix(0, entry.CreatedAt)) {
		return nil, nil
	}

	start, end, ok := paginate.Window(entry.Total, offset, count)
	if !ok {
		return nil, nil
	}

	var rows []itemModel
	err = s.db.NewSelect().
		Model(&rows).
		Where("token = ?", token).
		Where("position >= ?", start).
		Where("position < ?", end).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, paginate.NewStoreError(backendName, "get", err)
	}

	// Cleanup removed the entry between the two queries.
	if len(rows) != end-start {
		return nil, nil
	}

	out := make([]dav.ResultItem, 0, len(rows))
	for _, row := range rows {
		it, err := s.codec.Decode(row.Data)
		if err != nil {
			return nil, paginate.NewStoreError(backendName, "get", err)
		}
		out = append(out, it)
	}
	return out, nil
}

// Cleanup deletes expired entries one transaction per entry.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.opts.Cutoff().UnixNano()

	var tokens []string
	err := s.db.NewSelect().
		Model((*entryModel)(nil)).
		Column("token").
		Where("created_at <= ?", cutoff).
		Scan(ctx, &tokens)
	if err != nil {
		return 0, paginate.NewStoreError(backendName, "cleanup", err)
	}

	removed := 0
	for _, token := range tokens {
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewDelete().Model((*entryModel)(nil)).Where("token = ?", token).Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewDelete().Model((*itemModel)(nil)).Where("token = ?", token).Exec(ctx)
			return err
		})
		if err != nil {
			return removed, paginate.NewStoreError(backendName, "cleanup", err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) Clear(ctx context.Context) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entryModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*itemModel)(nil)).Where("1 = 1").Exec(ctx)
		return err
	})
	if err != nil {
		return paginate.NewStoreError(backendName, "clear", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
