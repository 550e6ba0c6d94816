package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"digidiary/internal/remote"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	watchLive bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull notes changed on the server since the last sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			start := time.Now()
			if err := a.repo.SyncNotes(cmd.Context(), userID); err != nil {
				return err
			}

			count, err := a.store.CountNotes(cmd.Context(), userID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Synced in %s, %d notes on this device.\n", time.Since(start).Round(time.Millisecond), count)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print your notes every time they change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			stream, err := a.repo.ObserveNotes(ctx, userID)
			if err != nil {
				return err
			}

			g.Go(func() error {
				out := cmd.OutOrStdout()
				for res := range stream {
					switch {
					case res.IsLoading():
						fmt.Fprintln(out, "Loading...")
					case res.IsError():
						fmt.Fprintf(out, "Error: %s\n", res.Message())
					default:
						fmt.Fprintf(out, "\n%s  %d notes\n", time.Now().Format(time.TimeOnly), len(res.Data))
						printNotes(out, res.Data)
					}
				}
				return nil
			})

			if watchLive {
				g.Go(func() error {
					return followServer(ctx, a, userID)
				})
			}

			return g.Wait()
		})
	},
}

// followServer pulls on every change event from the server. Events that
// arrive while a pull is running collapse into one follow-up pull.
func followServer(ctx context.Context, a *app, userID string) error {
	pending := make(chan struct{}, 1)
	pending <- struct{}{}

	listener := remote.NewListener(a.cfg.Client.ServerURL, a.tokens, a.cfg.Client.DeviceID, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-pending:
			}
			if err := a.repo.SyncNotes(ctx, userID); err != nil {
				a.logger.Warn("sync failed", "error", err)
			}
		}
	})

	g.Go(func() error {
		err := listener.Listen(ctx, func(ev remote.Event) {
			a.logger.Debug("server event", "type", ev.Type, "note", ev.NoteID, "device", ev.DeviceID)
			select {
			case pending <- struct{}{}:
			default:
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("live updates stopped: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func init() {
	watchCmd.Flags().BoolVar(&watchLive, "live", false, "Pull changes as soon as the server announces them")

	rootCmd.AddCommand(syncCmd, watchCmd)
}
