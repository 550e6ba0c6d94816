// Package remote talks to the sync server: the note document store, the
// account endpoints and the change event socket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"digidiary/internal/domain"
	"digidiary/pkg/response"
)

// Store is the remote half of note synchronization. Every call is scoped to
// the user the client is authenticated as.
type Store interface {
	FetchNotes(ctx context.Context, userID string, since *int64) ([]domain.Note, error)
	SaveNote(ctx context.Context, note domain.Note) (domain.Note, error)
	DeleteNote(ctx context.Context, id int64, userID string) error
	ServerTime(ctx context.Context) (int64, error)
}

// HTTPStore implements Store against the sync server REST API.
type HTTPStore struct {
	client *Client
}

var _ Store = (*HTTPStore)(nil)

func NewHTTPStore(client *Client) *HTTPStore {
	return &HTTPStore{client: client}
}

// FetchNotes returns the user's live notes, only those updated at or after
// since when it is set. Items that do not form a valid note are skipped.
func (s *HTTPStore) FetchNotes(ctx context.Context, userID string, since *int64) ([]domain.Note, error) {
	path := "/api/v1/notes"
	if since != nil {
		path += "?" + url.Values{"since": {strconv.FormatInt(*since, 10)}}.Encode()
	}

	var items []json.RawMessage
	if err := s.client.do(ctx, http.MethodGet, path, nil, &items, true); err != nil {
		return nil, remoteErr("fetch notes", err)
	}

	notes := make([]domain.Note, 0, len(items))
	for _, raw := range items {
		note, err := decodeNote(raw, userID)
		if err != nil {
			s.client.logger.Warn("skipping remote note", "user", userID, "error", err)
			continue
		}
		notes = append(notes, note)
	}

	return notes, nil
}

func decodeNote(raw json.RawMessage, userID string) (domain.Note, error) {
	var resp domain.NoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.Note{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if resp.ID <= 0 || resp.UserID == "" {
		return domain.Note{}, fmt.Errorf("%w: missing id or owner", domain.ErrMalformed)
	}
	if resp.UserID != userID {
		return domain.Note{}, fmt.Errorf("%w: note %d belongs to %s", domain.ErrMalformed, resp.ID, resp.UserID)
	}
	return resp.ToNote(), nil
}

// SaveNote creates the note when its id is zero and overwrites it
// otherwise. The returned note is the server copy.
func (s *HTTPStore) SaveNote(ctx context.Context, note domain.Note) (domain.Note, error) {
	req := domain.SaveNoteRequest{
		Title:      note.Title,
		Content:    note.Content,
		Date:       note.Date,
		IsTestNote: note.IsTestNote,
	}

	method, path := http.MethodPost, "/api/v1/notes"
	if note.ID != 0 {
		method, path = http.MethodPut, "/api/v1/notes/"+strconv.FormatInt(note.ID, 10)
	}

	var resp domain.NoteResponse
	if err := s.client.do(ctx, method, path, req, &resp, true); err != nil {
		return domain.Note{}, remoteErr("save note", err)
	}

	return resp.ToNote(), nil
}

// DeleteNote soft deletes the note. A note the server never saw counts as
// deleted.
func (s *HTTPStore) DeleteNote(ctx context.Context, id int64, userID string) error {
	err := s.client.do(ctx, http.MethodDelete, "/api/v1/notes/"+strconv.FormatInt(id, 10), nil, nil, true)
	if response.IsStatus(err, http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return remoteErr("delete note", err)
	}
	return nil
}

func (s *HTTPStore) ServerTime(ctx context.Context) (int64, error) {
	var resp domain.ServerTimeResponse
	if err := s.client.do(ctx, http.MethodGet, "/api/v1/time", nil, &resp, true); err != nil {
		return 0, remoteErr("read server time", err)
	}
	return resp.ServerTime, nil
}

func remoteErr(op string, err error) error {
	if errors.Is(err, domain.ErrRemote) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", domain.ErrRemote, op, err)
}

// discardLogger is used when no logger is configured.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
