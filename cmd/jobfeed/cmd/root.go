package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/config"
	"github.com/bitechdev/JobFeed/pkg/logger"
)

var (
	configFile string
	envFile    string

	app *App
)

var rootCmd = &cobra.Command{
	Use:   "jobfeed",
	Short: "Live job board client",
	Long: `jobfeed keeps a local copy of the job board and follows new postings
as the backend publishes them.

Configuration is read from jobfeed.yaml and JOBFEED_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if err := loadEnv(envFile); err != nil {
			return err
		}

		var opts []config.Option
		if configFile != "" {
			opts = append(opts, config.WithConfigFile(configFile))
		}
		mgr := config.NewManagerWithOptions(opts...)
		if err := mgr.Load(); err != nil {
			return err
		}
		cfg, err := mgr.GetConfig()
		if err != nil {
			return err
		}

		app, err = NewApp(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
			app = nil
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if app != nil {
			app.Close()
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./jobfeed.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
}

// loadEnv loads a dotenv file. A missing default file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == ".env" {
		logger.Debug("No .env file found, relying on environment variables")
		return nil
	}
	return err
}
