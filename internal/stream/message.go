package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/RishiKendai/contestguard/internal/pipeline"
	"github.com/redis/go-redis/v9"
)

// FieldContestSlug is the stream field carrying the contest to run.
const FieldContestSlug = "contest_slug"

var ErrMissingContestSlug = errors.New("message has no contest_slug")

// RunExecutor runs the full pipeline for one contest.
type RunExecutor interface {
	Run(ctx context.Context, contestSlug string) (*pipeline.RunReport, error)
}

type StreamMessage struct {
	ID     string
	Fields map[string]string
}

func ParseRunRequest(msg *StreamMessage) (*models.RunRequest, error) {
	slug := strings.TrimSpace(msg.Fields[FieldContestSlug])
	if slug == "" {
		return nil, fmt.Errorf("message %s: %w", msg.ID, ErrMissingContestSlug)
	}
	if err := pipeline.ValidateContestSlug(slug); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &models.RunRequest{ContestSlug: slug}, nil
}

// PublishRunRequest appends a run request for contestSlug to the stream.
func PublishRunRequest(ctx context.Context, client *redis.Client, streamKey, contestSlug string) (string, error) {
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{FieldContestSlug: contestSlug},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish run request: %w", err)
	}
	return id, nil
}
