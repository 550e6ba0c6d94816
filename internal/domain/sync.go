package domain

import "time"

const checkpointKeyPrefix = "last_sync_"

// SyncCheckpoint is the server time of the last successful pull for a user,
// in epoch milliseconds.
type SyncCheckpoint struct {
	UserID    string
	Timestamp int64
}

// CheckpointKey is the key under which a user's checkpoint is persisted.
func CheckpointKey(userID string) string {
	return checkpointKeyPrefix + userID
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// NoteDate is the precision note dates are stored with: milliseconds in UTC.
func NoteDate(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).UTC()
}

// FromMillis converts epoch milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
