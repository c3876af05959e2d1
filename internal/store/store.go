// Package store persists users, threads, messages, stream deltas, cached LLM responses
// and the retrieval corpus with gorm.
package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/persona-chat/internal/model"
)

// Config holds database connection settings.
type Config struct {
	Driver string // "sqlite" or "mysql"
	DSN    string
}

// Store wraps a gorm connection.
type Store struct {
	db  *gorm.DB
	ids *idSource
}

// Open connects to the configured database and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "" || strings.EqualFold(cfg.Driver, "sqlite") {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, ids: newIDSource()}
}

// Migrate creates or updates all tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.Thread{},
		&model.Message{},
		&model.StreamDelta{},
		&model.CacheEntry{},
		&model.RAGEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the gorm handle for tests and tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// idSource hands out monotonic ULIDs so that ids sort in creation order.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idSource) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

func encodeCursor(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decodeCursor(c string) (string, error) {
	if c == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}
	return string(b), nil
}

func pageSize(opts model.PaginationOpts) int {
	switch {
	case opts.NumItems <= 0:
		return 20
	case opts.NumItems > 100:
		return 100
	default:
		return opts.NumItems
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
