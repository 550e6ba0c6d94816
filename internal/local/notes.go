package local

import (
	"context"
	"database/sql"
	"errors"

	"digidiary/internal/domain"
)

const noteColumns = `id, title, content, date, user_id, is_test_note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (domain.Note, error) {
	var (
		n    domain.Note
		date int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &date, &n.UserID, &n.IsTestNote); err != nil {
		return domain.Note{}, err
	}
	n.Date = domain.FromMillis(date)
	return n, nil
}

func (s *SQLiteStore) listNotes(ctx context.Context, userID string) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, storageErr("list notes", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, storageErr("read note", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list notes", err)
	}

	return notes, nil
}

// GetNote returns nil when the note does not exist or belongs to another
// user.
func (s *SQLiteStore) GetNote(ctx context.Context, id int64, userID string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, userID)

	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get note", err)
	}

	return &n, nil
}

// Upsert inserts the note when its id is zero and returns the new id.
// Otherwise it rewrites the row with that id; a row that no longer exists is
// left deleted.
func (s *SQLiteStore) Upsert(ctx context.Context, note domain.Note) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin upsert", err)
	}
	defer tx.Rollback()

	touched := []string{note.UserID}

	if note.ID == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notes (title, content, date, user_id, is_test_note) VALUES (?, ?, ?, ?, ?)`,
			note.Title, note.Content, domain.Millis(note.Date), note.UserID, note.IsTestNote)
		if err != nil {
			return 0, storageErr("insert note", err)
		}
		if note.ID, err = res.LastInsertId(); err != nil {
			return 0, storageErr("insert note", err)
		}
	} else {
		var previous string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM notes WHERE id = ?`, note.ID).Scan(&previous)
		if errors.Is(err, sql.ErrNoRows) {
			return note.ID, nil
		}
		if err != nil {
			return 0, storageErr("update note", err)
		}
		if previous != note.UserID {
			touched = append(touched, previous)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET title = ?, content = ?, date = ?, user_id = ?, is_test_note = ? WHERE id = ?`,
			note.Title, note.Content, domain.Millis(note.Date), note.UserID, note.IsTestNote, note.ID); err != nil {
			return 0, storageErr("update note", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit upsert", err)
	}

	s.notify(touched...)
	return note.ID, nil
}

// Delete removes the note if it belongs to userID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return storageErr("delete note", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(userID)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE user_id = ?`, userID)
	if err != nil {
		return storageErr("delete user notes", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(userID)
	}
	return nil
}

// BulkInsert writes every note in one transaction, replacing rows with the
// same id. Applying the same batch twice leaves the same state.
func (s *SQLiteStore) BulkInsert(ctx context.Context, notes []domain.Note) error {
	if len(notes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin bulk insert", err)
	}
	defer tx.Rollback()

	owner, err := tx.PrepareContext(ctx, `SELECT user_id FROM notes WHERE id = ?`)
	if err != nil {
		return storageErr("prepare bulk insert", err)
	}
	defer owner.Close()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageErr("prepare bulk insert", err)
	}
	defer stmt.Close()

	touched := make(map[string]bool)
	for _, n := range notes {
		var previous string
		if err := owner.QueryRowContext(ctx, n.ID).Scan(&previous); err == nil {
			touched[previous] = true
		} else if !errors.Is(err, sql.ErrNoRows) {
			return storageErr("bulk insert", err)
		}

		if _, err := stmt.ExecContext(ctx,
			n.ID, n.Title, n.Content, domain.Millis(n.Date), n.UserID, n.IsTestNote); err != nil {
			return storageErr("bulk insert", err)
		}
		touched[n.UserID] = true
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit bulk insert", err)
	}

	for userID := range touched {
		s.notify(userID)
	}
	return nil
}

// DeleteTestNotes removes every note flagged as test data, whoever owns it.
func (s *SQLiteStore) DeleteTestNotes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners, err := s.distinctOwners(ctx, `SELECT DISTINCT user_id FROM notes WHERE is_test_note = 1`)
	if err != nil {
		return storageErr("delete test notes", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE is_test_note = 1`); err != nil {
		return storageErr("delete test notes", err)
	}

	s.notify(owners...)
	return nil
}

func (s *SQLiteStore) CountNotes(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, storageErr("count notes", err)
	}
	return n, nil
}

// ReassignOwner moves every note of from to to.
func (s *SQLiteStore) ReassignOwner(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE notes SET user_id = ? WHERE user_id = ?`, to, from)
	if err != nil {
		return storageErr("reassign notes", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(from, to)
	}
	return nil
}

func (s *SQLiteStore) distinctOwners(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}
