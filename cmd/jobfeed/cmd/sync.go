package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/jobs"
)

var (
	syncSearch string
	listLimit  int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the backend's job listing into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		created, err := app.API(cmd.Context()).Sync(cmd.Context(), store, syncSearch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced, %d new jobs\n", created)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List locally stored jobs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.Store()
		if err != nil {
			return err
		}
		opts := jobs.ListOptions{Limit: listLimit}
		if len(args) == 1 {
			opts.Search = args[0]
		}
		list, err := store.List(cmd.Context(), opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, job := range list {
			fmt.Fprintf(out, "%s  %-40s %s, %s  %s\n",
				job.ID, job.Title, job.Company, job.Location, job.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncSearch, "search", "", "only sync jobs matching this search")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", jobs.DefaultPageSize, "maximum number of jobs")
	rootCmd.AddCommand(syncCmd, listCmd)
}
