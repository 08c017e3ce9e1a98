package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RishiKendai/contestguard/internal/config"
	"github.com/RishiKendai/contestguard/internal/configs/env"
	"github.com/RishiKendai/contestguard/internal/logger"
	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/RishiKendai/contestguard/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "contestguard",
	Short: "LeetCode contest plagiarism detection",
	Long: `contestguard crawls the accepted submissions of a LeetCode contest,
compares the code of its last two questions and stores who copied from whom.

Examples:
  contestguard run weekly-contest-410
  contestguard crawl weekly-contest-410 --page-limit 5
  contestguard analyze --threshold 0.5
  contestguard serve`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("artifacts-dir", "", "directory of the per-contest submission CSV files")
	flags.String("results-dir", "", "directory of JSON results when no MongoDB is configured")
	flags.String("mongo-uri", "", "MongoDB connection string")
	flags.String("base-url", "", "LeetCode base URL")

	rootCmd.AddCommand(crawlCmd, analyzeCmd, runCmd, serveCmd, enqueueCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			log.Error().Err(stageErr.Err).Str("stage", string(stageErr.Stage)).Int("processed", stageErr.Processed).Msg("Run aborted")
		} else {
			log.Error().Err(err).Msg("Command failed")
		}
		return 1
	}
	return 0
}

func setup(cmd *cobra.Command, args []string) error {
	if err := env.LoadEnv(); err != nil {
		log.Debug().Err(err).Msg("Continuing with system environment variables")
	}

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, loaded); err != nil {
		return err
	}

	if cmd == serveCmd {
		logger.Init(loaded.LogLevel)
		err = loaded.ValidateServer()
	} else {
		logger.InitConsole(loaded.LogLevel)
		err = loaded.Validate()
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	metrics.InitPrometheus()
	cfg = loaded
	return nil
}

// applyFlags copies explicitly set flags over the environment configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	var errs []error

	str := func(name string, dst *string) {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			v, err := flags.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			v, err := flags.GetFloat64(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("log-level", &c.LogLevel)
	str("artifacts-dir", &c.ArtifactsDir)
	str("results-dir", &c.ResultsDir)
	str("mongo-uri", &c.MongoURI)
	str("base-url", &c.LeetCodeBaseURL)

	num("page-limit", &c.PageLimit)
	num("workers", &c.Workers)
	num("max-retries", &c.MaxRetries)
	float("requests-per-second", &c.RequestsPerSecond)

	float("threshold", &c.DetectionThreshold)
	num("min-tokens", &c.MinTokens)
	num("detect-workers", &c.DetectWorkers)

	str("port", &c.ServerPort)

	return errors.Join(errs...)
}
