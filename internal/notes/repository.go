// Package notes is the note repository the presentation layer talks to.
// Reads and writes go to the local store first; the remote store is a
// replica that is pushed to in the background and pulled from on sync.
package notes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"digidiary/internal/domain"
	"digidiary/internal/local"
	"digidiary/internal/remote"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// legacyOwner is the owner of notes written before sign-in existed.
const legacyOwner = "unknown"

type Repository struct {
	local      local.Store
	remote     remote.Store
	replicator Replicator
	validate   *validator.Validate
	syncs      singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Repository)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithClock replaces the clock used when the server time is unavailable.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

func New(localStore local.Store, remoteStore remote.Store, replicator Replicator, opts ...Option) *Repository {
	r := &Repository{
		local:      localStore,
		remote:     remoteStore,
		replicator: replicator,
		validate:   validator.New(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ObserveNotes streams the user's notes, newest first. The first result is
// Loading; each later one is either the full list or the error that kept it
// from being read. The stream ends with ctx.
func (r *Repository) ObserveNotes(ctx context.Context, userID string) (<-chan domain.Result[[]domain.Note], error) {
	snapshots, err := r.local.Watch(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Result[[]domain.Note], 1)
	out <- domain.Loading[[]domain.Note]()

	go func() {
		defer close(out)

		for snap := range snapshots {
			result := domain.Ok(sortByDate(snap.Notes))
			if snap.Err != nil {
				r.logger.Warn("failed to load notes", "user", userID, "error", snap.Err)
				result = domain.Err[[]domain.Note](snap.Err)
			}

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func sortByDate(notes []domain.Note) []domain.Note {
	sorted := make([]domain.Note, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}

// GetNote returns nil when the user has no note with that id.
func (r *Repository) GetNote(ctx context.Context, id int64, userID string) (*domain.Note, error) {
	return r.local.GetNote(ctx, id, userID)
}

// SaveNote persists the note locally and returns its id. The date is
// reduced to domain.NoteDate. The push to the remote store happens
// afterwards and its outcome is not reported.
func (r *Repository) SaveNote(ctx context.Context, note domain.Note) (int64, error) {
	if err := r.validate.Struct(note); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidNote, err)
	}
	note.Date = domain.NoteDate(note.Date)

	id, err := r.local.Upsert(ctx, note)
	if err != nil {
		return 0, err
	}
	note.ID = id

	r.replicator.Go("save note "+strconv.FormatInt(id, 10), func(ctx context.Context) error {
		saved, err := r.remote.SaveNote(ctx, note)
		if err != nil {
			return err
		}
		// the row may be gone by now; Upsert then leaves it deleted
		_, err = r.local.Upsert(ctx, saved)
		return err
	})

	return id, nil
}

// DeleteNote removes the note locally, then soft deletes it remotely in the
// background.
func (r *Repository) DeleteNote(ctx context.Context, id int64, userID string) error {
	if err := r.local.Delete(ctx, id, userID); err != nil {
		return err
	}

	r.replicator.Go("delete note "+strconv.FormatInt(id, 10), func(ctx context.Context) error {
		return r.remote.DeleteNote(ctx, id, userID)
	})

	return nil
}

// DeleteAllUserNotes clears the user's notes on this device only; a later
// full sync brings them back.
func (r *Repository) DeleteAllUserNotes(ctx context.Context, userID string) error {
	return r.local.DeleteAllForUser(ctx, userID)
}

// DeleteTestNotes removes every note flagged as test data from this device.
func (r *Repository) DeleteTestNotes(ctx context.Context) error {
	return r.local.DeleteTestNotes(ctx)
}

// AdoptLegacyNotes gives the notes written before sign-in to userID.
func (r *Repository) AdoptLegacyNotes(ctx context.Context, userID string) error {
	if userID == "" || userID == legacyOwner {
		return nil
	}
	return r.local.ReassignOwner(ctx, legacyOwner, userID)
}

// SyncNotes pulls the notes changed remotely since the last sync. Calls for
// a user that already has a sync running wait for it and share its result.
func (r *Repository) SyncNotes(ctx context.Context, userID string) error {
	_, err, _ := r.syncs.Do(userID, func() (interface{}, error) {
		return nil, r.pull(ctx, userID)
	})
	return err
}

func (r *Repository) pull(ctx context.Context, userID string) error {
	var since *int64
	ts, ok, err := r.local.SyncCheckpoint(ctx, userID)
	switch {
	case err != nil:
		r.logger.Warn("failed to read sync checkpoint, pulling everything", "user", userID, "error", err)
	case ok && ts > 0:
		since = &ts
	}

	notes, err := r.remote.FetchNotes(ctx, userID, since)
	if err != nil {
		return err
	}

	if len(notes) > 0 {
		if err := r.local.BulkInsert(ctx, notes); err != nil {
			return err
		}
	}

	serverTime, err := r.remote.ServerTime(ctx)
	if err != nil {
		r.logger.Warn("failed to read server time, using local clock", "user", userID, "error", err)
		serverTime = domain.Millis(r.now())
	}

	if err := r.local.SetSyncCheckpoint(ctx, userID, serverTime); err != nil {
		r.logger.Warn("failed to store sync checkpoint", "user", userID, "error", err)
	}

	r.logger.Debug("sync finished", "user", userID, "pulled", len(notes), "checkpoint", serverTime)
	return nil
}
