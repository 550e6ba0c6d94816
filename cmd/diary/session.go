package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"digidiary/internal/domain"
	"digidiary/internal/remote"

	"gopkg.in/yaml.v3"
)

var errNotLoggedIn = fmt.Errorf(`%w, run "diary login" first`, remote.ErrUnauthenticated)

// session is the signed in account, persisted between invocations.
type session struct {
	UserID         string    `yaml:"user_id"`
	Username       string    `yaml:"username"`
	Email          string    `yaml:"email"`
	AccessToken    string    `yaml:"access_token"`
	RefreshToken   string    `yaml:"refresh_token"`
	AccessExpireAt time.Time `yaml:"access_expires_at"`
}

func newSession(resp *domain.LoginResponse, now time.Time) *session {
	return &session{
		UserID:         resp.User.ID,
		Username:       resp.User.Username,
		Email:          resp.User.Email,
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
		AccessExpireAt: now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}

// loadSession returns nil, nil when nobody is logged in.
func loadSession(path string) (*session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if s.UserID == "" {
		return nil, nil
	}
	return &s, nil
}

func (s *session) save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func removeSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// refresher exchanges a refresh token for a new access token.
type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error)
}

// sessionTokens hands out the session access token, refreshing and saving
// it once it is about to expire.
type sessionTokens struct {
	mu      sync.Mutex
	session *session
	path    string
	auth    refresher
	now     func() time.Time
}

var _ remote.TokenSource = (*sessionTokens)(nil)

const refreshMargin = 30 * time.Second

func (t *sessionTokens) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return "", errNotLoggedIn
	}

	if t.now().Add(refreshMargin).Before(t.session.AccessExpireAt) {
		return t.session.AccessToken, nil
	}

	resp, err := t.auth.Refresh(ctx, t.session.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("session expired, log in again: %w", err)
	}

	t.session.AccessToken = resp.AccessToken
	t.session.AccessExpireAt = t.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if err := t.session.save(t.path); err != nil {
		return "", err
	}

	return t.session.AccessToken, nil
}
