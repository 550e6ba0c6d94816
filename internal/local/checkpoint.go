package local

import (
	"context"
	"database/sql"
	"errors"

	"digidiary/internal/domain"
)

// SyncCheckpoint returns the stored last-sync time of userID. ok is false
// when none has been written yet.
func (s *SQLiteStore) SyncCheckpoint(ctx context.Context, userID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_checkpoints WHERE key = ?`, domain.CheckpointKey(userID)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("read sync checkpoint", err)
	}

	return ts, true, nil
}

func (s *SQLiteStore) SetSyncCheckpoint(ctx context.Context, userID string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_checkpoints (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		domain.CheckpointKey(userID), ts); err != nil {
		return storageErr("write sync checkpoint", err)
	}

	return nil
}
