package notes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"digidiary/internal/domain"
	"digidiary/internal/local"

	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("offline")

type remoteDoc struct {
	note      domain.Note
	updatedAt int64
	deleted   bool
}

// fakeRemote mimics the sync server: it stamps updatedAt from its own clock
// and keeps tombstones.
type fakeRemote struct {
	mu         sync.Mutex
	docs       map[int64]*remoteDoc
	clock      int64
	fetchErr   error
	saveErr    error
	deleteErr  error
	timeErr    error
	fetchCalls int
	sinceSeen  []*int64
	deletes    []int64
	gate       chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: make(map[int64]*remoteDoc), clock: 1000}
}

func (f *fakeRemote) put(note domain.Note, updatedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[note.ID] = &remoteDoc{note: note, updatedAt: updatedAt}
}

func (f *fakeRemote) FetchNotes(ctx context.Context, userID string, since *int64) ([]domain.Note, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	f.sinceSeen = append(f.sinceSeen, since)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	var out []domain.Note
	for _, d := range f.docs {
		if d.deleted || d.note.UserID != userID {
			continue
		}
		if since != nil && d.updatedAt < *since {
			continue
		}
		out = append(out, d.note)
	}
	return out, nil
}

func (f *fakeRemote) SaveNote(ctx context.Context, note domain.Note) (domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return domain.Note{}, f.saveErr
	}
	f.clock++
	f.docs[note.ID] = &remoteDoc{note: note, updatedAt: f.clock}
	return note, nil
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id int64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if d, ok := f.docs[id]; ok && d.note.UserID == userID {
		f.clock++
		d.deleted = true
		d.updatedAt = f.clock
	}
	return nil
}

func (f *fakeRemote) ServerTime(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timeErr != nil {
		return 0, f.timeErr
	}
	return f.clock, nil
}

// inlineReplicator runs tasks before Go returns and records failures.
type inlineReplicator struct {
	mu       sync.Mutex
	failures []error
	held     []func(ctx context.Context) error
	hold     bool
}

func (r *inlineReplicator) Go(name string, task func(ctx context.Context) error) {
	r.mu.Lock()
	if r.hold {
		r.held = append(r.held, task)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := task(context.Background()); err != nil {
		r.mu.Lock()
		r.failures = append(r.failures, err)
		r.mu.Unlock()
	}
}

// release runs the tasks queued while hold was set.
func (r *inlineReplicator) release() {
	r.mu.Lock()
	held := r.held
	r.held, r.hold = nil, false
	r.mu.Unlock()

	for _, task := range held {
		if err := task(context.Background()); err != nil {
			r.failures = append(r.failures, err)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openLocal(t *testing.T) *local.SQLiteStore {
	t.Helper()

	store, err := local.Open(context.Background(), filepath.Join(t.TempDir(), "diary.db"), local.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fixture struct {
	repo   *Repository
	local  *local.SQLiteStore
	remote *fakeRemote
	repl   *inlineReplicator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		local:  openLocal(t),
		remote: newFakeRemote(),
		repl:   &inlineReplicator{},
	}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	f.repo = New(f.local, f.remote, f.repl, opts...)
	return f
}
