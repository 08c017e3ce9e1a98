package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statusKeyPrefix = "contest_run_status:"
	statusTTL       = 12 * time.Hour
)

// StatusTracker records the current step of a contest run.
type StatusTracker interface {
	UpdateStatus(ctx context.Context, contestSlug string, step models.Step) error
	GetStatus(ctx context.Context, contestSlug string) (models.Step, error)
}

var validSteps = map[models.Step]bool{
	models.StepIdle:        true,
	models.StepInitiated:   true,
	models.StepCrawling:    true,
	models.StepGrouping:    true,
	models.StepDetecting:   true,
	models.StepAggregating: true,
	models.StepDelivering:  true,
	models.StepCompleted:   true,
	models.StepFailed:      true,
}

type RedisStatusTracker struct {
	client *redis.Client
}

func NewRedisStatusTracker(client *redis.Client) *RedisStatusTracker {
	return &RedisStatusTracker{client: client}
}

func StatusKey(contestSlug string) string {
	return statusKeyPrefix + contestSlug
}

func (t *RedisStatusTracker) UpdateStatus(ctx context.Context, contestSlug string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	rkey := StatusKey(contestSlug)

	err := t.client.Set(ctx, rkey, string(step), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("contestSlug", contestSlug).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Str("contestSlug", contestSlug).
		Msg("Status updated in Redis")

	return nil
}

// GetStatus returns StepIdle when no run was recorded for the contest.
func (t *RedisStatusTracker) GetStatus(ctx context.Context, contestSlug string) (models.Step, error) {
	step, err := t.client.Get(ctx, StatusKey(contestSlug)).Result()
	if errors.Is(err, redis.Nil) {
		return models.StepIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(step), nil
}

// NoopStatusTracker is used when no Redis is configured.
type NoopStatusTracker struct{}

func (NoopStatusTracker) UpdateStatus(ctx context.Context, contestSlug string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}
	return nil
}

func (NoopStatusTracker) GetStatus(ctx context.Context, contestSlug string) (models.Step, error) {
	return models.StepIdle, nil
}
