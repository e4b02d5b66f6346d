package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/diagnostics"
	"github.com/bitechdev/JobFeed/pkg/jobs"
	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

var (
	watchListen string
	watchSync   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow new and updated jobs as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "diagnostics listen address (overrides metrics.addr)")
	watchCmd.Flags().BoolVar(&watchSync, "sync", false, "copy the current listing from the backend before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, out io.Writer) error {
	store, err := app.Store()
	if err != nil {
		return err
	}

	if watchSync {
		created, err := app.API(ctx).Sync(ctx, store, "")
		if err != nil {
			logger.Warn("Initial sync failed: %v", err)
		} else {
			fmt.Fprintf(out, "synced, %d new jobs\n", created)
		}
	}

	client, err := app.NewClient(realtime.WithStateHook(func(s realtime.State) {
		logger.Info("Connection %s", s)
	}))
	if err != nil {
		return err
	}

	feed := jobs.NewFeed(client, store,
		jobs.WithFeedMetrics(app.Metrics),
		jobs.WithOnJob(func(job jobs.Job, created bool) {
			printJob(out, job, created)
		}),
	)
	feed.Start()
	defer feed.Stop()

	if addr := listenAddr(); addr != "" {
		srv, err := diagnostics.NewServer(diagnostics.Config{
			Addr: addr,
			Handler: diagnostics.NewRouter(diagnostics.RouterOptions{
				Stats:   client,
				Metrics: app.Metrics,
				Extra:   watchStatus(store, feed),
			}),
			GZIP: true,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
	}

	if err := app.Connect(ctx, client); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching %s via %s\n", jobs.Topic, client.Stats().Transport)

	<-ctx.Done()
	return nil
}

func watchStatus(store *jobs.Store, feed *jobs.Feed) func() map[string]any {
	return func() map[string]any {
		recent, err := store.List(context.Background(), jobs.ListOptions{Limit: 5})
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		ids := make([]string, 0, len(recent))
		for _, job := range recent {
			ids = append(ids, job.ID)
		}
		return map[string]any{"recent_jobs": ids, "new_jobs": feed.NewCount()}
	}
}

func listenAddr() string {
	if watchListen != "" {
		return watchListen
	}
	if app.Config.Metrics.Enabled {
		return app.Config.Metrics.Addr
	}
	return ""
}

func printJob(out io.Writer, job jobs.Job, created bool) {
	tag := "UPDATED"
	if created {
		tag = "NEW"
	}
	fmt.Fprintf(out, "[%s] %s  %s @ %s (%s)\n", tag, job.ID, job.Title, job.Company, job.Location)
}
