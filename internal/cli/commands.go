package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RishiKendai/contestguard/internal/artifacts"
	redisInfra "github.com/RishiKendai/contestguard/internal/infra/redis"
	"github.com/RishiKendai/contestguard/internal/pipeline"
	"github.com/RishiKendai/contestguard/internal/stream"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errMissingContestSlug = errors.New("contest slug is required, pass it as an argument or set CONTEST_SLUG")

var crawlCmd = &cobra.Command{
	Use:   "crawl [contest-slug]",
	Short: "Download the target question submissions of a contest to CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, err := contestSlugArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		acq, err := a.runner.Acquire(cmd.Context(), slug)
		if err != nil {
			return err
		}
		log.Info().
			Str("contestSlug", slug).
			Int("question3", acq.Targets[0].QuestionID).
			Int("question4", acq.Targets[1].QuestionID).
			Int("pages", acq.Stats.Pages).
			Int("acquired", acq.Stats.Acquired).
			Int("skipped", acq.Stats.Skipped).
			Str("file", artifacts.PathFor(cfg.ArtifactsDir, slug)).
			Msg("Crawl finished")
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [contest-slug]",
	Short: "Detect plagiarism in previously crawled submissions",
	Long: `analyze reads the CSV written by crawl and delivers the results.
Without a slug argument it uses CONTEST_SLUG, then the last crawled contest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, err := contestSlugArg(args)
		if errors.Is(err, errMissingContestSlug) {
			slug, err = artifacts.LoadContestSlug(cfg.ArtifactsDir)
			if err != nil {
				return fmt.Errorf("no contest to analyze: %w", err)
			}
			err = pipeline.ValidateContestSlug(slug)
		}
		if err != nil {
			return err
		}

		path := artifacts.PathFor(cfg.ArtifactsDir, slug)
		subs, err := artifacts.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load submissions for %s: %w", slug, err)
		}
		log.Info().Str("contestSlug", slug).Str("file", path).Int("submissions", len(subs)).Msg("Loaded submissions")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.runner.Analyze(cmd.Context(), slug, subs)
		if err != nil {
			return err
		}
		logReport(report)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [contest-slug]",
	Short: "Crawl, detect and deliver in one pass",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, err := contestSlugArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.runner.Run(cmd.Context(), slug)
		if err != nil {
			return err
		}
		logReport(report)
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <contest-slug>",
	Short: "Queue a run request on the Redis stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RedisHost == "" {
			return errors.New("REDIS_HOST is required to enqueue runs")
		}

		if err := pipeline.ValidateContestSlug(args[0]); err != nil {
			return err
		}

		rc, err := redisInfra.NewClient(cmd.Context(), cfg.RedisHost, cfg.RedisPassword, 0)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rc.Close()

		id, err := stream.PublishRunRequest(cmd.Context(), rc.Client, cfg.RedisStreamKey, args[0])
		if err != nil {
			return err
		}
		log.Info().Str("contestSlug", args[0]).Str("messageId", id).Msg("Run request queued")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{crawlCmd, runCmd} {
		cmd.Flags().Int("page-limit", 0, "maximum number of ranking pages to crawl")
		cmd.Flags().Int("workers", 0, "concurrent submission downloads per page")
		cmd.Flags().Int("max-retries", 0, "retries per request after the first attempt")
		cmd.Flags().Float64("requests-per-second", 0, "request rate limit, 0 disables it")
	}
	for _, cmd := range []*cobra.Command{analyzeCmd, runCmd, serveCmd} {
		cmd.Flags().Float64("threshold", 0, "coverage both submissions must exceed to be reported")
		cmd.Flags().Int("min-tokens", 0, "submissions with fewer tokens are not compared")
		cmd.Flags().Int("detect-workers", 0, "concurrent detection groups, 0 uses the CPU count")
	}
	serveCmd.Flags().String("port", "", "API server port")
}

// contestSlugArg returns the positional slug, falling back to CONTEST_SLUG.
// The slug is validated before it names any file.
func contestSlugArg(args []string) (string, error) {
	slug := cfg.ContestSlug
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		slug = strings.TrimSpace(args[0])
	}
	if slug == "" {
		return "", errMissingContestSlug
	}
	return slug, pipeline.ValidateContestSlug(slug)
}
