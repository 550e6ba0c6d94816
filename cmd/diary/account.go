package main

import (
	"fmt"
	"time"

	"digidiary/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

var (
	accountUsername string
	accountEmail    string
	accountPassword string
	currentPassword string
	newPassword     string
	loginNoSync     bool
)

var validate = validator.New()

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the sync server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &domain.RegisterRequest{
			Username: accountUsername,
			Email:    accountEmail,
			Password: accountPassword,
		}
		if err := validate.Struct(req); err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			if err := a.auth.Register(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account created. Run \"diary login\" to sign in.")
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and pull your notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &domain.LoginRequest{Email: accountEmail, Password: accountPassword}
		if err := validate.Struct(req); err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()

			resp, err := a.auth.Login(ctx, req)
			if err != nil {
				return err
			}

			sess := newSession(resp, time.Now())
			if err := sess.save(a.cfg.Client.SessionPath()); err != nil {
				return err
			}
			a.tokens.session = sess

			if err := a.repo.AdoptLegacyNotes(ctx, sess.UserID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", sess.Username)

			if loginNoSync {
				return nil
			}
			return a.repo.SyncNotes(ctx, sess.UserID)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the signed in account on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.auth.Logout(cmd.Context()); err != nil {
				a.logger.Warn("server logout failed", "error", err)
			}
			if err := removeSession(a.cfg.Client.SessionPath()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		})
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the account password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &domain.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
		if err := validate.Struct(req); err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.userID(); err != nil {
				return err
			}
			if err := a.auth.ChangePassword(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		})
	},
}

func init() {
	registerCmd.Flags().StringVar(&accountUsername, "username", "", "Username (letters and digits)")
	registerCmd.Flags().StringVar(&accountEmail, "email", "", "Email address")
	registerCmd.Flags().StringVar(&accountPassword, "password", "", "Password, at least 8 characters")

	loginCmd.Flags().StringVar(&accountEmail, "email", "", "Email address")
	loginCmd.Flags().StringVar(&accountPassword, "password", "", "Password")
	loginCmd.Flags().BoolVar(&loginNoSync, "no-sync", false, "Do not pull notes after signing in")

	passwdCmd.Flags().StringVar(&currentPassword, "current", "", "Current password")
	passwdCmd.Flags().StringVar(&newPassword, "new", "", "New password, at least 8 characters")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, passwdCmd)
}
