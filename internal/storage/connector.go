package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"misgastos/internal/core"
	"misgastos/internal/log"

	_ "modernc.org/sqlite"
)

// State is the lifecycle state of a Connector.
type State int

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrClosed = errors.New("database is closed")

// OpenFunc performs the physical open of the database at path.
type OpenFunc func(ctx context.Context, path string) (*sql.DB, error)

// Option configures a Connector.
type Option func(*Connector)

// WithOpener replaces the default SQLite opener.
func WithOpener(fn OpenFunc) Option {
	return func(c *Connector) { c.open = fn }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *log.Logger) Option {
	return func(c *Connector) { c.logger = logger }
}

// Connector owns the process-wide database handle. The first Acquire opens
// it; concurrent first callers share that single open. A failed open is
// forgotten so the next Acquire starts a fresh one.
type Connector struct {
	path   string
	open   OpenFunc
	logger *log.Logger
	group  singleflight.Group

	mu    sync.Mutex
	db    *sql.DB
	state State
	opens int
}

func NewConnector(path string, opts ...Option) *Connector {
	c := &Connector{
		path: path,
		open: openSQLite,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentStorage)
	return c
}

// Path returns the database file path.
func (c *Connector) Path() string { return c.path }

// State returns the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Opens returns how many physical opens have been attempted.
func (c *Connector) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Acquire returns the shared handle, opening it on first use.
func (c *Connector) Acquire(ctx context.Context) (*sql.DB, error) {
	db, err := c.cached()
	if db != nil || err != nil {
		return db, err
	}

	v, err, _ := c.group.Do("open", func() (any, error) {
		// A caller may arrive right after a successful flight finished.
		if db, err := c.cached(); db != nil || err != nil {
			return db, err
		}

		c.mu.Lock()
		c.state = StateOpening
		c.opens++
		c.mu.Unlock()

		// The open is shared by every waiting caller, so it must not
		// depend on the first caller staying around.
		db, err := c.open(context.WithoutCancel(ctx), c.path)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state = StateFailed
			c.logger.LogError(ctx, "Failed to open database", err, log.OpOpen, log.ErrorTypeDatabase,
				log.LogFields{log.FieldDBPath: c.path})
			return nil, err
		}
		if c.state == StateClosed {
			db.Close()
			return nil, ErrClosed
		}
		c.db = db
		c.state = StateOpen
		c.logger.InfoContext(ctx, "Database opened", log.FieldDBPath, c.path)
		return db, nil
	})
	if err != nil {
		return nil, core.NewStorageError("open database", err)
	}
	return v.(*sql.DB), nil
}

func (c *Connector) cached() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil, core.NewStorageError("open database", ErrClosed)
	}
	return c.db, nil
}

// Close closes the handle. Later Acquire calls fail with ErrClosed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// dsn adds a busy timeout so readers wait out a checkpoint instead of
// failing with SQLITE_BUSY.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}
