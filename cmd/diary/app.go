package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"digidiary/internal/config"
	"digidiary/internal/local"
	"digidiary/internal/notes"
	"digidiary/internal/remote"
)

// app wires the client side together for one invocation. Everything is
// built here and handed down explicitly.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	tokens     *sessionTokens
	client     *remote.Client
	auth       *remote.AuthClient
	store      *local.SQLiteStore
	replicator *notes.BackgroundReplicator
	repo       *notes.Repository
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	sess, err := loadSession(cfg.Client.SessionPath())
	if err != nil {
		return nil, err
	}

	tokens := &sessionTokens{
		session: sess,
		path:    cfg.Client.SessionPath(),
		now:     time.Now,
	}

	client := remote.NewClient(cfg.Client.ServerURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Client.RequestTimeout}),
		remote.WithTokenSource(tokens),
		remote.WithDeviceID(cfg.Client.DeviceID),
		remote.WithLogger(logger),
	)
	auth := remote.NewAuthClient(client)
	tokens.auth = auth

	var storeOpts []local.Option
	storeOpts = append(storeOpts, local.WithLogger(logger))
	if sess != nil {
		storeOpts = append(storeOpts, local.WithLegacyOwner(sess.UserID))
	}

	store, err := local.Open(ctx, cfg.Client.DatabasePath(), storeOpts...)
	if err != nil {
		return nil, err
	}

	replicator := notes.NewBackgroundReplicator(context.Background(),
		notes.WithTaskTimeout(cfg.Client.ReplicationTimeout),
		notes.WithReplicatorLogger(logger),
	)

	repo := notes.New(store, remote.NewHTTPStore(client), replicator, notes.WithLogger(logger))

	return &app{
		cfg:        cfg,
		logger:     logger,
		tokens:     tokens,
		client:     client,
		auth:       auth,
		store:      store,
		replicator: replicator,
		repo:       repo,
	}, nil
}

// userID is the signed in user, or errNotLoggedIn.
func (a *app) userID() (string, error) {
	if a.tokens.session == nil {
		return "", errNotLoggedIn
	}
	return a.tokens.session.UserID, nil
}

// Close gives background pushes a bounded amount of time to finish before
// closing the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Client.ReplicationTimeout)
	defer cancel()

	if !a.replicator.Close(ctx) {
		a.logger.Warn("gave up waiting for background replication")
	}

	return a.store.Close()
}

// withApp runs fn with a freshly opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) (err error) {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close: %w", cerr))
		}
	}()

	return fn(a)
}
