package fmorm

import (
	"context"
	"fmt"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/models"
	"github.com/rs/zerolog"
)

// DB is the entry point for queries and writes against one FileMaker database.
type DB struct {
	store      connection.Store
	uploader   connection.ContainerUploader
	downloader connection.ContainerDownloader
	logger     zerolog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for query and write tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithContainerUploader sets the uploader that receives container field content after
// a write. It defaults to the store when the store can upload containers.
func WithContainerUploader(u connection.ContainerUploader) Option {
	return func(db *DB) {
		db.uploader = u
	}
}

// WithContainerDownloader sets the downloader used to autoload container content.
func WithContainerDownloader(d connection.ContainerDownloader) Option {
	return func(db *DB) {
		db.downloader = d
	}
}

// New returns a DB backed by store.
func New(store connection.Store, opts ...Option) *DB {
	db := &DB{
		store:  store,
		logger: zerolog.Nop(),
	}
	if u, ok := store.(connection.ContainerUploader); ok {
		db.uploader = u
	}
	if d, ok := store.(connection.ContainerDownloader); ok {
		db.downloader = d
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// FromConfig opens a Data API session described by conf.
func FromConfig(ctx context.Context, conf *connection.Config, opts ...Option) (*DB, error) {
	conn := connection.NewHTTPConnection(conf)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", conf.Host, err)
	}
	return New(conn, append([]Option{WithLogger(conf.Logger)}, opts...)...), nil
}

// Close ends the store session when the store holds one.
func (db *DB) Close(ctx context.Context) error {
	if c, ok := db.store.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

// Store returns the underlying store.
func (db *DB) Store() connection.Store {
	return db.store
}

// Query starts a query on the layout of spec.
func (db *DB) Query(spec *models.ModelSpec) *Builder {
	return newBuilder(db, spec)
}

// NewModel returns an empty, never persisted model of spec.
func (db *DB) NewModel(spec *models.ModelSpec) *Model {
	return newModel(db, spec)
}

// Writer returns the write coordinator for spec.
func (db *DB) Writer(spec *models.ModelSpec) *Writer {
	return newWriter(db, spec)
}

// Resolver returns the relation resolver of db.
func (db *DB) Resolver() *Resolver {
	return &Resolver{db: db}
}

// Hydrate turns materialized rows into persisted models of spec.
func (db *DB) Hydrate(spec *models.ModelSpec, rows []*models.Row) []*Model {
	out := make([]*Model, 0, len(rows))
	for _, row := range rows {
		m := newModel(db, spec)
		m.setRawAttributes(row)
		m.exists = true
		m.syncOriginal()
		out = append(out, m)
	}
	return out
}
