package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"digidiary/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TokenResponse{AccessToken: "fresh-" + refreshToken, ExpiresIn: 900}, nil
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sess := newSession(&domain.LoginResponse{
		User:         &domain.User{ID: "u1", Username: "ana", Email: "ana@example.com"},
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    60,
	}, now)
	require.NoError(t, sess.save(path))

	loaded, err := loadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "u1", loaded.UserID)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, loaded.AccessExpireAt.Equal(now.Add(time.Minute)))

	require.NoError(t, removeSession(path))
	require.NoError(t, removeSession(path))

	loaded, err = loadSession(path)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionTokensRefreshNearExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	auth := &fakeRefresher{}

	tokens := &sessionTokens{
		session: &session{
			UserID:         "u1",
			AccessToken:    "stale",
			RefreshToken:   "r1",
			AccessExpireAt: now.Add(10 * time.Minute),
		},
		path: path,
		auth: auth,
		now:  func() time.Time { return now },
	}

	token, err := tokens.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale", token)
	assert.Zero(t, auth.calls)

	now = now.Add(9*time.Minute + 45*time.Second)
	token, err = tokens.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-r1", token)
	assert.Equal(t, 1, auth.calls)

	saved, err := loadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-r1", saved.AccessToken)
	assert.True(t, saved.AccessExpireAt.Equal(now.Add(900*time.Second)))
}

func TestSessionTokensErrors(t *testing.T) {
	tokens := &sessionTokens{now: time.Now}
	_, err := tokens.AccessToken(context.Background())
	assert.ErrorIs(t, err, errNotLoggedIn)

	tokens = &sessionTokens{
		session: &session{UserID: "u1", RefreshToken: "r1"},
		path:    filepath.Join(t.TempDir(), "session.yaml"),
		auth:    &fakeRefresher{err: errors.New("revoked")},
		now:     time.Now,
	}
	_, err = tokens.AccessToken(context.Background())
	assert.ErrorContains(t, err, "log in again")
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC)

	got, err := parseDate("", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(now.Truncate(time.Millisecond)))

	got, err = parseDate("2025-12-24", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2025-12-24T10:00:00+02:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 24, 8, 0, 0, 0, time.UTC), got)

	_, err = parseDate("yesterday", now)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}
