package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/internal/config"
	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/version"
)

// skipConfig marks commands that must run without a loadable config.
const skipConfig = "skip-config"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	serverURL string

	cfg      *config.Config
	logger   *log.Logger
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "wayfinder",
	Short: "Conversational trip planner",
	Long: `wayfinder turns a free-form travel request into a day-by-day itinerary.

Run "wayfinder serve" to host the planning API, then use "wayfinder plan"
to ask for trips and "wayfinder itinerary" to keep them, online or not.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if closeLog != nil {
			_ = closeLog()
			closeLog = nil
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./wayfinder.yaml or ~/.wayfinder/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override the log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "planner base URL (overrides client.server_url)")
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		cfg = config.Default()
		logger = log.Discard()
		return nil
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	if serverURL != "" {
		loaded.Client.ServerURL = serverURL
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	lc, closer, err := loaded.LoggerConfig(version.GetInfo().Version)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = log.New(lc)
	closeLog = closer
	log.SetDefaultLogger(logger)
	return nil
}
