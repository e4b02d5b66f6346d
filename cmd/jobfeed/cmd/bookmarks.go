package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/jobs"
)

var bookmarksCmd = &cobra.Command{
	Use:     "bookmarks",
	Aliases: []string{"bm"},
	Short:   "Manage bookmarked jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bookmarksListCmd.RunE(cmd, args)
	},
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarked jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		ids, err := store.Bookmarks(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "no bookmarks")
			return nil
		}
		for _, id := range ids {
			job, err := store.Get(cmd.Context(), id)
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				fmt.Fprintf(out, "%s  (not synced)\n", id)
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "%s  %s @ %s\n", job.ID, job.Title, job.Company)
			}
		}
		return nil
	},
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add <job-id>...",
	Short: "Bookmark jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := store.AddBookmark(cmd.Context(), id); err != nil {
				return err
			}
		}
		return nil
	},
}

var bookmarksRemoveCmd = &cobra.Command{
	Use:     "remove <job-id>...",
	Aliases: []string{"rm"},
	Short:   "Remove bookmarks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := store.RemoveBookmark(cmd.Context(), id); err != nil {
				return err
			}
		}
		return nil
	},
}

var bookmarksToggleCmd = &cobra.Command{
	Use:   "toggle <job-id>",
	Short: "Bookmark a job, or remove its bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		marked, err := store.ToggleBookmark(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "removed"
		if marked {
			state = "added"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bookmark %s: %s\n", state, args[0])
		return nil
	},
}

func init() {
	bookmarksCmd.AddCommand(bookmarksListCmd, bookmarksAddCmd, bookmarksRemoveCmd, bookmarksToggleCmd)
	rootCmd.AddCommand(bookmarksCmd)
}
