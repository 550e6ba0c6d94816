// Package local is the on-device note store. It is the source of truth for
// everything the user reads; the remote store only ever feeds it.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"digidiary/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is the contract the note repository needs from local persistence.
type Store interface {
	Watch(ctx context.Context, userID string) (<-chan Snapshot, error)
	GetNote(ctx context.Context, id int64, userID string) (*domain.Note, error)
	Upsert(ctx context.Context, note domain.Note) (int64, error)
	Delete(ctx context.Context, id int64, userID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	BulkInsert(ctx context.Context, notes []domain.Note) error
	SyncCheckpoint(ctx context.Context, userID string) (int64, bool, error)
	SetSyncCheckpoint(ctx context.Context, userID string, ts int64) error
	DeleteTestNotes(ctx context.Context) error
	CountNotes(ctx context.Context, userID string) (int, error)
	ReassignOwner(ctx context.Context, from, to string) error
	Close() error
}

// Snapshot is one emission of a Watch stream: the user's notes, newest
// first, or the error that prevented reading them.
type Snapshot struct {
	Notes []domain.Note
	Err   error
}

type options struct {
	logger      *slog.Logger
	legacyOwner string
	eventBuffer int64
}

type Option func(*options)

// WithLogger sets the logger used for migrations and change notifications.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLegacyOwner names the user that notes created before accounts existed
// are assigned to while migrating.
func WithLegacyOwner(userID string) Option {
	return func(o *options) {
		o.legacyOwner = userID
	}
}

// WithEventBuffer sizes the per-subscriber change notification buffer.
func WithEventBuffer(size int64) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// SQLiteStore keeps notes and sync checkpoints in a single SQLite file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	events *gochannel.GoChannel
	logger *slog.Logger
	closed chan struct{}
	once   sync.Once
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and brings its schema
// up to date.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := &options{
		logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
		eventBuffer: 16,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %w", domain.ErrStorage, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", domain.ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, o.legacyOwner, o.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	return &SQLiteStore{
		db: db,
		events: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: o.eventBuffer},
			watermill.NopLogger{},
		),
		logger: o.logger,
		closed: make(chan struct{}),
	}, nil
}

// Close ends every Watch stream and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if cerr := s.events.Close(); cerr != nil {
			s.logger.Warn("failed to close change notifications", "error", cerr)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.db.Close()
	})
	return err
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", domain.ErrStorage, op, err)
}
