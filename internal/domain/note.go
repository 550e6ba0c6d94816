package domain

import (
	"strconv"
	"time"
)

// Note is the value object exchanged between the local store, the remote
// store and the presentation layer. ID is zero until the first local insert.
// Date is kept to the millisecond in UTC, see NoteDate.
type Note struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title" validate:"required_without=Content"`
	Content    string    `json:"content" validate:"required_without=Title"`
	Date       time.Time `json:"date" validate:"required"`
	UserID     string    `json:"userId" validate:"required"`
	IsTestNote bool      `json:"isTestNote"`
}

// RemoteNote is the document stored in the notes collection of the sync
// server. UpdatedAt is assigned by the server in epoch milliseconds and
// IsDeleted marks a tombstone.
type RemoteNote struct {
	DocID      string    `json:"_id,omitempty"`
	Rev        string    `json:"_rev,omitempty"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Date       time.Time `json:"date"`
	UserID     string    `json:"userId"`
	IsTestNote bool      `json:"isTestNote"`
	UpdatedAt  int64     `json:"updatedAt"`
	IsDeleted  bool      `json:"isDeleted"`
}

// NoteDocID is the CouchDB document id of a user's note. Ids are only unique
// per user, so the owner is part of the key.
func NoteDocID(userID string, id int64) string {
	return "note:" + userID + ":" + strconv.FormatInt(id, 10)
}

// ToNote converts the document back to the domain model. A non-numeric id
// yields ErrMalformed.
func (r *RemoteNote) ToNote() (Note, error) {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil || id <= 0 {
		return Note{}, ErrMalformed
	}
	if r.UserID == "" {
		return Note{}, ErrMalformed
	}

	return Note{
		ID:         id,
		Title:      r.Title,
		Content:    r.Content,
		Date:       r.Date,
		UserID:     r.UserID,
		IsTestNote: r.IsTestNote,
	}, nil
}

// NewRemoteNote builds the document body for n. Server managed fields are
// left zero.
func NewRemoteNote(n Note) *RemoteNote {
	return &RemoteNote{
		DocID:      NoteDocID(n.UserID, n.ID),
		ID:         strconv.FormatInt(n.ID, 10),
		Title:      n.Title,
		Content:    n.Content,
		Date:       n.Date,
		UserID:     n.UserID,
		IsTestNote: n.IsTestNote,
	}
}

type SaveNoteRequest struct {
	Title      string    `json:"title" validate:"required_without=Content"`
	Content    string    `json:"content" validate:"required_without=Title"`
	Date       time.Time `json:"date" validate:"required"`
	IsTestNote bool      `json:"isTestNote"`
}

type NoteResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Date       time.Time `json:"date"`
	UserID     string    `json:"userId"`
	IsTestNote bool      `json:"isTestNote"`
	UpdatedAt  int64     `json:"updatedAt"`
	IsDeleted  bool      `json:"isDeleted"`
}

// NewNoteResponse returns nil when the document id is not numeric.
func NewNoteResponse(r *RemoteNote) *NoteResponse {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return nil
	}
	return &NoteResponse{
		ID:         id,
		Title:      r.Title,
		Content:    r.Content,
		Date:       r.Date,
		UserID:     r.UserID,
		IsTestNote: r.IsTestNote,
		UpdatedAt:  r.UpdatedAt,
		IsDeleted:  r.IsDeleted,
	}
}

func (r *NoteResponse) ToNote() Note {
	return Note{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		Date:       r.Date,
		UserID:     r.UserID,
		IsTestNote: r.IsTestNote,
	}
}

type ServerTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}
