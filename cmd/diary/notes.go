package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"digidiary/internal/domain"

	"github.com/spf13/cobra"
)

var (
	noteTitle   string
	noteContent string
	noteDate    string
	noteTest    bool
	listJSON    bool
	purgeYes    bool
)

const dateLayout = "2006-01-02"

// parseDate accepts a day or a full RFC 3339 timestamp; empty means now.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC().Truncate(time.Millisecond), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return id, nil
}

func printNotes(w io.Writer, list []domain.Note) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE")
	for _, n := range list {
		title := n.Title
		if title == "" {
			title = firstLine(n.Content)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", n.ID, n.Date.Local().Format(dateLayout), title)
	}
	tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Write a new note",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDate(noteDate, time.Now())
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			id, err := a.repo.SaveNote(cmd.Context(), domain.Note{
				Title:      noteTitle,
				Content:    noteContent,
				Date:       date,
				UserID:     userID,
				IsTestNote: noteTest,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved note %d.\n", id)
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title or content of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			userID, err := a.userID()
			if err != nil {
				return err
			}

			note, err := a.repo.GetNote(ctx, id, userID)
			if err != nil {
				return err
			}
			if note == nil {
				return fmt.Errorf("note %d not found", id)
			}

			if cmd.Flags().Changed("title") {
				note.Title = noteTitle
			}
			if cmd.Flags().Changed("content") {
				note.Content = noteContent
			}
			if note.Date, err = parseDate(noteDate, time.Now()); err != nil {
				return err
			}

			if _, err := a.repo.SaveNote(ctx, *note); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated note %d.\n", id)
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			note, err := a.repo.GetNote(cmd.Context(), id, userID)
			if err != nil {
				return err
			}
			if note == nil {
				return fmt.Errorf("note %d not found", id)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n%s\n\n%s\n", note.Title, note.Date.Local().Format(time.RFC1123), note.Content)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your notes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			list, err := currentNotes(cmd, a, userID)
			if err != nil {
				return err
			}

			if listJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(list)
			}

			printNotes(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

// currentNotes reads the first loaded result of the note stream.
func currentNotes(cmd *cobra.Command, a *app, userID string) ([]domain.Note, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stream, err := a.repo.ObserveNotes(ctx, userID)
	if err != nil {
		return nil, err
	}

	for res := range stream {
		switch {
		case res.IsError():
			return nil, res.Err
		case res.IsSuccess():
			return res.Data, nil
		}
	}
	return nil, ctx.Err()
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			if err := a.repo.DeleteNote(cmd.Context(), id, userID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted note %d.\n", id)
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all your notes from this device (the server copy is kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return fmt.Errorf("refusing to purge without --yes")
		}

		return withApp(cmd.Context(), func(a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			if err := a.repo.DeleteAllUserNotes(cmd.Context(), userID); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), `Local notes removed. Run "diary sync" to restore them.`)
			return nil
		})
	},
}

var purgeTestCmd = &cobra.Command{
	Use:   "purge-test",
	Short: "Remove notes flagged as test data from this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.repo.DeleteTestNotes(cmd.Context())
		})
	},
}

func init() {
	addCmd.Flags().StringVarP(&noteTitle, "title", "t", "", "Note title")
	addCmd.Flags().StringVarP(&noteContent, "content", "c", "", "Note content")
	addCmd.Flags().StringVar(&noteDate, "date", "", "Note date (YYYY-MM-DD or RFC 3339), defaults to now")
	addCmd.Flags().BoolVar(&noteTest, "test", false, "Flag the note as test data")

	editCmd.Flags().StringVarP(&noteTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVarP(&noteContent, "content", "c", "", "New content")
	editCmd.Flags().StringVar(&noteDate, "date", "", "New date, defaults to now")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")

	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "Confirm removing every local note")

	rootCmd.AddCommand(addCmd, editCmd, showCmd, listCmd, rmCmd, purgeCmd, purgeTestCmd)
}
