package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"digidiary/internal/domain"
	"digidiary/internal/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestSaveNoteAssignsIDAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	note := domain.Note{Title: "A", Content: "B", Date: day(2024, 1, 1), UserID: "u1"}

	id, err := f.repo.SaveNote(ctx, note)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := f.repo.GetNote(ctx, id, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	note.ID = 1
	assert.Equal(t, note, *got)
}

func TestSaveNotePushesInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.repo.SaveNote(ctx, domain.Note{Title: "A", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)

	f.remote.mu.Lock()
	doc, ok := f.remote.docs[id]
	f.remote.mu.Unlock()
	require.True(t, ok, "note was not pushed")
	assert.Equal(t, id, doc.note.ID)
	assert.Empty(t, f.repl.failures)
}

func TestSaveNoteSucceedsWhenPushFails(t *testing.T) {
	f := newFixture(t)
	f.remote.saveErr = errOffline
	ctx := context.Background()

	id, err := f.repo.SaveNote(ctx, domain.Note{Title: "A", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)

	got, err := f.repo.GetNote(ctx, id, "u1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.Len(t, f.repl.failures, 1)
	assert.ErrorIs(t, f.repl.failures[0], errOffline)
}

func TestSaveNoteRejectsInvalidNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		note domain.Note
	}{
		{name: "empty title and content", note: domain.Note{Date: day(2024, 1, 1), UserID: "u1"}},
		{name: "no owner", note: domain.Note{Title: "x", Date: day(2024, 1, 1)}},
		{name: "no date", note: domain.Note{Title: "x", UserID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.repo.SaveNote(ctx, tt.note)
			assert.ErrorIs(t, err, domain.ErrInvalidNote)
		})
	}

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveNoteStoresDateToTheMillisecondInUTC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	zone := time.FixedZone("CET", 60*60)
	date := time.Date(2024, 1, 1, 10, 0, 0, 123456789, zone)

	id, err := f.repo.SaveNote(ctx, domain.Note{Title: "A", Date: date, UserID: "u1"})
	require.NoError(t, err)

	want := domain.Note{ID: id, Title: "A", Date: time.Date(2024, 1, 1, 9, 0, 0, 123000000, time.UTC), UserID: "u1"}

	got, err := f.repo.GetNote(ctx, id, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
	assert.True(t, got.Date.Equal(date.Truncate(time.Millisecond)))

	f.remote.mu.Lock()
	pushed := f.remote.docs[id].note
	f.remote.mu.Unlock()
	assert.Equal(t, want.Date, pushed.Date)
}

func TestDeleteNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.repo.SaveNote(ctx, domain.Note{Title: "A", Content: "B", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)

	got, err := f.repo.GetNote(ctx, id, "u2")
	require.NoError(t, err)
	assert.Nil(t, got, "another user must not see the note")

	require.NoError(t, f.repo.DeleteNote(ctx, id, "u1"))

	got, err = f.repo.GetNote(ctx, id, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []int64{id}, f.remote.deletes)
	assert.True(t, f.remote.docs[id].deleted, "remote copy should be a tombstone")
}

func TestLatePushDoesNotResurrectDeletedNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repl.hold = true
	id, err := f.repo.SaveNote(ctx, domain.Note{Title: "A", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.local.Delete(ctx, id, "u1"))
	f.repl.release()

	got, err := f.repo.GetNote(ctx, id, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteAllUserNotesIsLocalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.repo.SaveNote(ctx, domain.Note{Title: "n", Date: day(2024, 1, i+1), UserID: "u1"})
		require.NoError(t, err)
	}

	require.NoError(t, f.repo.DeleteAllUserNotes(ctx, "u1"))

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.remote.docs, 3)
	assert.Empty(t, f.remote.deletes)

	// a full pull restores them
	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))
	n, err = f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestObserveNotesSortsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.repo.SaveNote(ctx, domain.Note{Title: "jan", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)
	_, err = f.repo.SaveNote(ctx, domain.Note{Title: "feb", Date: day(2024, 2, 1), UserID: "u1"})
	require.NoError(t, err)

	stream, err := f.repo.ObserveNotes(ctx, "u1")
	require.NoError(t, err)

	first := <-stream
	assert.True(t, first.IsLoading())

	select {
	case res := <-stream:
		require.True(t, res.IsSuccess())
		require.Len(t, res.Data, 2)
		assert.Equal(t, "feb", res.Data[0].Title)
		assert.Equal(t, "jan", res.Data[1].Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no notes emitted")
	}
}

// brokenWatch is a local store whose stream reports a read failure.
type brokenWatch struct {
	local.Store
	snapshots []local.Snapshot
}

func (b *brokenWatch) Watch(ctx context.Context, userID string) (<-chan local.Snapshot, error) {
	ch := make(chan local.Snapshot, len(b.snapshots))
	for _, s := range b.snapshots {
		ch <- s
	}
	close(ch)
	return ch, nil
}

func TestObserveNotesReportsErrors(t *testing.T) {
	failure := errors.New("disk on fire")
	store := &brokenWatch{snapshots: []local.Snapshot{
		{Err: failure},
		{Notes: []domain.Note{
			{ID: 1, Title: "old", Date: day(2023, 1, 1), UserID: "u1"},
			{ID: 2, Title: "new", Date: day(2024, 1, 1), UserID: "u1"},
		}},
	}}
	repo := New(store, newFakeRemote(), &inlineReplicator{}, WithLogger(quietLogger()))

	stream, err := repo.ObserveNotes(context.Background(), "u1")
	require.NoError(t, err)

	var results []domain.Result[[]domain.Note]
	for res := range stream {
		results = append(results, res)
	}

	require.Len(t, results, 3)
	assert.True(t, results[0].IsLoading())
	assert.True(t, results[1].IsError())
	assert.ErrorIs(t, results[1].Err, failure)
	assert.True(t, results[2].IsSuccess())
	assert.Equal(t, "new", results[2].Data[0].Title)
}

func TestSyncNotesUsesCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.put(domain.Note{ID: 1, Title: "old", Date: day(2024, 1, 1), UserID: "u1"}, 500)
	f.remote.put(domain.Note{ID: 2, Title: "other user", Date: day(2024, 1, 1), UserID: "u2"}, 500)
	f.remote.clock = 1000

	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))
	require.Nil(t, f.remote.sinceSeen[0], "first sync should pull everything")

	ts, ok, err := f.local.SyncCheckpoint(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), ts)

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// an edit made locally after the checkpoint is overwritten only by newer remote copies
	_, err = f.local.Upsert(ctx, domain.Note{ID: 1, Title: "local edit", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)
	f.remote.put(domain.Note{ID: 3, Title: "fresh", Date: day(2024, 3, 1), UserID: "u1"}, 1000)
	f.remote.clock = 2000

	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))
	require.NotNil(t, f.remote.sinceSeen[1])
	assert.Equal(t, int64(1000), *f.remote.sinceSeen[1])

	kept, err := f.repo.GetNote(ctx, 1, "u1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", kept.Title)

	fresh, err := f.repo.GetNote(ctx, 3, "u1")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, "fresh", fresh.Title)
}

func TestSyncNotesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.put(domain.Note{ID: 4, Title: "x", Date: day(2024, 1, 1), UserID: "u1"}, 10)
	f.remote.put(domain.Note{ID: 5, Title: "y", Date: day(2024, 1, 2), UserID: "u1"}, 10)

	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))
	require.NoError(t, f.local.SetSyncCheckpoint(ctx, "u1", 0))
	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Nil(t, f.remote.sinceSeen[1], "a zero checkpoint means a full pull")
}

func TestSyncNotesFetchFailureKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.local.SetSyncCheckpoint(ctx, "u1", 700))
	f.remote.fetchErr = errOffline

	err := f.repo.SyncNotes(ctx, "u1")
	assert.ErrorIs(t, err, errOffline)

	ts, ok, err := f.local.SyncCheckpoint(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(700), ts)
}

func TestSyncNotesFallsBackToLocalClock(t *testing.T) {
	f := newFixture(t, WithClock(func() time.Time { return time.UnixMilli(9999) }))
	ctx := context.Background()
	f.remote.timeErr = errOffline

	require.NoError(t, f.repo.SyncNotes(ctx, "u1"))

	ts, ok, err := f.local.SyncCheckpoint(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9999), ts)
}

func TestSyncNotesCollapsesConcurrentCalls(t *testing.T) {
	f := newFixture(t)
	f.remote.gate = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.repo.SyncNotes(ctx, "u1")
		}(i)
	}

	// give every caller time to join the in-flight sync
	time.Sleep(50 * time.Millisecond)
	close(f.remote.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	f.remote.mu.Lock()
	defer f.remote.mu.Unlock()
	assert.Equal(t, 1, f.remote.fetchCalls)
}

func TestAdoptLegacyNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.local.Upsert(ctx, domain.Note{Title: "before accounts", Date: day(2020, 1, 1), UserID: legacyOwner})
	require.NoError(t, err)

	require.NoError(t, f.repo.AdoptLegacyNotes(ctx, "u1"))

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteTestNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.SaveNote(ctx, domain.Note{Title: "keep", Date: day(2024, 1, 1), UserID: "u1"})
	require.NoError(t, err)
	_, err = f.repo.SaveNote(ctx, domain.Note{Title: "fixture", Date: day(2024, 1, 1), UserID: "u1", IsTestNote: true})
	require.NoError(t, err)

	require.NoError(t, f.repo.DeleteTestNotes(ctx))

	n, err := f.local.CountNotes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
