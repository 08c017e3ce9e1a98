package cli

import (
	"context"
	"fmt"

	"github.com/RishiKendai/contestguard/internal/config"
	"github.com/RishiKendai/contestguard/internal/crawler"
	"github.com/RishiKendai/contestguard/internal/fetcher"
	redisInfra "github.com/RishiKendai/contestguard/internal/infra/redis"
	"github.com/RishiKendai/contestguard/internal/pipeline"
	"github.com/RishiKendai/contestguard/internal/plagiarism"
	"github.com/RishiKendai/contestguard/internal/sink"
	"github.com/rs/zerolog/log"
)

// app owns the long-lived resources shared by one command invocation.
type app struct {
	cfg    *config.Config
	redis  *redisInfra.Client
	status pipeline.StatusTracker
	pool   *plagiarism.WorkerPool
	runner *pipeline.Runner
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	a := &app{cfg: c, status: pipeline.NoopStatusTracker{}}

	if c.RedisHost != "" {
		rc, err := redisInfra.NewClient(ctx, c.RedisHost, c.RedisPassword, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.redis = rc
		a.status = pipeline.NewRedisStatusTracker(rc.Client)
	}

	a.pool = plagiarism.NewWorkerPool(ctx, c.DetectWorkers)
	log.Debug().Int("workers", a.pool.Size()).Msg("Detection worker pool started")

	a.runner = pipeline.NewRunner(newFetcher(c), sinkFactory(c), a.status, a.pool, runnerOptions(c))
	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}

func newFetcher(c *config.Config) *fetcher.Fetcher {
	opts := fetcher.DefaultOptions()
	opts.MaxRetries = c.MaxRetries
	opts.RequestTimeout = c.RequestTimeout
	opts.RequestsPerSecond = c.RequestsPerSecond
	return fetcher.New(opts)
}

// sinkFactory writes to MongoDB when a URI is configured and to JSON files otherwise.
func sinkFactory(c *config.Config) pipeline.SinkFactory {
	if c.MongoURI != "" {
		return func(ctx context.Context, contestSlug string) (sink.Sink, error) {
			return sink.NewMongoSink(ctx, c.MongoURI, c.MongoDBName)
		}
	}
	return func(ctx context.Context, contestSlug string) (sink.Sink, error) {
		return sink.NewJSONSink(c.ResultsDir, contestSlug)
	}
}

func runnerOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		Crawler: crawler.Options{
			BaseURL:        c.LeetCodeBaseURL,
			PageLimit:      c.PageLimit,
			Workers:        c.Workers,
			ExcludedRegion: c.ExcludedRegion,
			MaxCodeBytes:   c.MaxCodeBytes,
		},
		Detect: plagiarism.DetectOptions{
			Threshold:  c.DetectionThreshold,
			MinTokens:  c.MinTokens,
			KGramSize:  c.KGramSize,
			WindowSize: c.WindowSize,
		},
		ArtifactsDir: c.ArtifactsDir,
	}
}

func logReport(report *pipeline.RunReport) {
	log.Info().
		Str("runId", report.RunID).
		Str("contestSlug", report.ContestSlug).
		Int("question3", report.Targets[0].QuestionID).
		Int("question4", report.Targets[1].QuestionID).
		Int("acquired", report.Crawl.Acquired).
		Int("skipped", report.Crawl.Skipped).
		Int("groups", report.Detection.Groups).
		Int("matches", report.Detection.Matches).
		Int("delivered", report.Delivery.Delivered).
		Int("failedBatches", len(report.Delivery.Failures)).
		Dur("duration", report.Duration).
		Msg("Run finished")
}
