package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"digidiary/internal/domain"
	"digidiary/internal/repository"

	"github.com/go-playground/validator/v10"
)

const maxCreateAttempts = 3

// NoteService is the server half of the remote note store: documents are
// stamped with the server clock on every write and deletes leave tombstones.
type NoteService struct {
	repo        repository.NoteRepository
	broadcaster Broadcaster
	validate    *validator.Validate
	now         func() time.Time
}

func NewNoteService(repo repository.NoteRepository, broadcaster Broadcaster) *NoteService {
	return &NoteService{
		repo:        repo,
		broadcaster: broadcaster,
		validate:    validator.New(),
		now:         time.Now,
	}
}

// ServerTime is the clock that stamps updatedAt, in epoch milliseconds.
func (s *NoteService) ServerTime() int64 {
	return domain.Millis(s.now())
}

// List returns the user's live notes, only those updated at or after since
// when it is set.
func (s *NoteService) List(ctx context.Context, userID string, since *int64) ([]*domain.NoteResponse, error) {
	docs, err := s.repo.Find(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.NoteResponse, 0, len(docs))
	for _, doc := range docs {
		resp := domain.NewNoteResponse(doc)
		if resp == nil {
			log.Printf("[Notes] skipping document %s with malformed id %q", doc.DocID, doc.ID)
			continue
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// Save creates the note when id is zero, allocating the next free id for the
// user, and otherwise overwrites the document with that id.
func (s *NoteService) Save(ctx context.Context, userID, deviceID string, id int64, req *domain.SaveNoteRequest) (*domain.NoteResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	note := domain.Note{
		ID:         id,
		Title:      req.Title,
		Content:    req.Content,
		Date:       req.Date,
		UserID:     userID,
		IsTestNote: req.IsTestNote,
	}

	var (
		doc *domain.RemoteNote
		err error
	)
	if id == 0 {
		doc, err = s.create(ctx, note)
	} else {
		doc, err = s.overwrite(ctx, note)
	}
	if err != nil {
		return nil, err
	}

	response := domain.NewNoteResponse(doc)

	if s.broadcaster != nil {
		if err := s.broadcaster.NoteSaved(userID, deviceID, response.ID, response.UpdatedAt); err != nil {
			log.Printf("[Notes] failed to broadcast save of note %d: %v", response.ID, err)
		}
	}

	return response, nil
}

func (s *NoteService) create(ctx context.Context, note domain.Note) (*domain.RemoteNote, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		highest, err := s.repo.MaxID(ctx, note.UserID)
		if err != nil {
			return nil, err
		}

		note.ID = highest + 1
		doc := domain.NewRemoteNote(note)
		doc.UpdatedAt = s.ServerTime()

		err = s.repo.Create(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to allocate note id: %w", repository.ErrConflict)
}

func (s *NoteService) overwrite(ctx context.Context, note domain.Note) (*domain.RemoteNote, error) {
	doc := domain.NewRemoteNote(note)

	existing, err := s.repo.FindByID(ctx, note.UserID, note.ID)
	switch {
	case err == nil:
		doc.Rev = existing.Rev
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	doc.UpdatedAt = s.ServerTime()
	doc.IsDeleted = false

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// Delete marks the document as a tombstone and bumps updatedAt. The document
// itself is never removed.
func (s *NoteService) Delete(ctx context.Context, userID, deviceID string, id int64) error {
	doc, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}

	doc.IsDeleted = true
	doc.UpdatedAt = s.ServerTime()

	if err := s.repo.Save(ctx, doc); err != nil {
		return err
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.NoteDeleted(userID, deviceID, id, doc.UpdatedAt); err != nil {
			log.Printf("[Notes] failed to broadcast delete of note %d: %v", id, err)
		}
	}

	return nil
}
