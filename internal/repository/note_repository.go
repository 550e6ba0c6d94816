package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"digidiary/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

var ErrConflict = errors.New("document update conflict")

type NoteRepository interface {
	Find(ctx context.Context, userID string, since *int64) ([]*domain.RemoteNote, error)
	FindByID(ctx context.Context, userID string, id int64) (*domain.RemoteNote, error)
	Create(ctx context.Context, note *domain.RemoteNote) error
	Save(ctx context.Context, note *domain.RemoteNote) error
	MaxID(ctx context.Context, userID string) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

// findPageSize bounds each _find request. CouchDB applies a limit of 25 when
// the query sets none.
const findPageSize = 200

type noteRepository struct {
	client   *kivik.Client
	dbName   string
	pageSize int
}

func NewNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &noteRepository{
		client:   client,
		dbName:   dbName,
		pageSize: findPageSize,
	}
}

// findAll runs a Mango query page by page, following the bookmark until a
// page comes back short, and hands every row to each.
func (r *noteRepository) findAll(ctx context.Context, query map[string]interface{}, each func(rows *kivik.ResultSet)) error {
	db := r.client.DB(r.dbName)

	var bookmark string
	for {
		page := make(map[string]interface{}, len(query)+2)
		for k, v := range query {
			page[k] = v
		}
		page["limit"] = r.pageSize
		if bookmark != "" {
			page["bookmark"] = bookmark
		}

		rows := db.Find(ctx, page)
		if err := rows.Err(); err != nil {
			return err
		}

		var count int
		for rows.Next() {
			count++
			each(rows)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}

		meta, err := rows.Metadata()
		rows.Close()
		if err != nil {
			return err
		}

		if count < r.pageSize || meta.Bookmark == "" || meta.Bookmark == bookmark {
			return nil
		}
		bookmark = meta.Bookmark
	}
}

func (r *noteRepository) EnsureIndexes(ctx context.Context) error {
	db := r.client.DB(r.dbName)

	index := map[string]interface{}{
		"fields": []string{"userId", "updatedAt"},
	}
	if err := db.CreateIndex(ctx, "notes", "by-user-updated", index); err != nil {
		return fmt.Errorf("failed to create notes index: %w", err)
	}

	return nil
}

// Find returns the user's live documents, restricted to updatedAt >= since
// when since is set. Documents that do not scan are skipped.
func (r *noteRepository) Find(ctx context.Context, userID string, since *int64) ([]*domain.RemoteNote, error) {
	selector := map[string]interface{}{
		"userId":    userID,
		"isDeleted": false,
	}
	if since != nil {
		selector["updatedAt"] = map[string]interface{}{"$gte": *since}
	}

	var notes []*domain.RemoteNote
	err := r.findAll(ctx, map[string]interface{}{"selector": selector}, func(rows *kivik.ResultSet) {
		var note domain.RemoteNote
		if err := rows.ScanDoc(&note); err != nil {
			log.Printf("[Notes] skipping unreadable document for user %s: %v", userID, err)
			return
		}
		notes = append(notes, &note)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	return notes, nil
}

func (r *noteRepository) FindByID(ctx context.Context, userID string, id int64) (*domain.RemoteNote, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, domain.NoteDocID(userID, id))

	var note domain.RemoteNote
	if err := row.ScanDoc(&note); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	return &note, nil
}

// Create writes a new document and fails with a conflict when the id is
// already taken.
func (r *noteRepository) Create(ctx context.Context, note *domain.RemoteNote) error {
	db := r.client.DB(r.dbName)

	note.Rev = ""
	rev, err := db.Put(ctx, note.DocID, note)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrConflict
		}
		return fmt.Errorf("failed to create note: %w", err)
	}
	note.Rev = rev

	return nil
}

// Save writes the full document, creating it or overwriting the current
// revision. The caller owns UpdatedAt and IsDeleted.
func (r *noteRepository) Save(ctx context.Context, note *domain.RemoteNote) error {
	db := r.client.DB(r.dbName)

	if note.DocID == "" {
		id, err := strconv.ParseInt(note.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to save note: %w", domain.ErrMalformed)
		}
		note.DocID = domain.NoteDocID(note.UserID, id)
	}

	if note.Rev == "" {
		var existing domain.RemoteNote
		err := db.Get(ctx, note.DocID).ScanDoc(&existing)
		switch {
		case err == nil:
			note.Rev = existing.Rev
		case kivik.HTTPStatus(err) != http.StatusNotFound:
			return fmt.Errorf("failed to fetch existing note for update: %w", err)
		}
	}

	rev, err := db.Put(ctx, note.DocID, note)
	if err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	note.Rev = rev

	return nil
}

// MaxID scans every document of the user, tombstones included, so that an
// id is never reused.
func (r *noteRepository) MaxID(ctx context.Context, userID string) (int64, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{"userId": userID},
		"fields":   []string{"id"},
	}

	var highest int64
	err := r.findAll(ctx, query, func(rows *kivik.ResultSet) {
		var doc struct {
			ID string `json:"id"`
		}
		if err := rows.ScanDoc(&doc); err != nil {
			return
		}
		if id, err := strconv.ParseInt(doc.ID, 10, 64); err == nil && id > highest {
			highest = id
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan note ids: %w", err)
	}

	return highest, nil
}
