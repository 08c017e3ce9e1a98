package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	readCount    = 10
	readBlock    = time.Second
	claimMinIdle = time.Minute
	claimBatch   = 100
	recoverEvery = 30 * time.Second
	trimEvery    = time.Hour
	consumePause = time.Second
)

// Consumer reads run requests from a Redis stream as a member of a consumer
// group and executes each one through the runner. Requests whose runs keep
// failing are handed to the retry handler's dead letter list.
type Consumer struct {
	client       *redis.Client
	streamKey    string
	group        string
	name         string
	runner       RunExecutor
	retryHandler *RetryHandler
	retention    time.Duration
	nextRecovery time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	group string,
	name string,
	runner RunExecutor,
	retryHandler *RetryHandler,
	retention time.Duration,
) *Consumer {
	return &Consumer{
		client:       client,
		streamKey:    streamKey,
		group:        group,
		name:         name,
		runner:       runner,
		retryHandler: retryHandler,
		retention:    retention,
		nextRecovery: time.Now().Add(recoverEvery),
	}
}

// Start blocks consuming run requests until ctx is done. Requests left pending
// by a crashed consumer are claimed first.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.createConsumerGroup(ctx); err != nil {
		return err
	}

	log.Info().Str("consumer", c.name).Str("stream", c.streamKey).Msg("Recovering pending run requests")
	if err := c.recoverPEL(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover pending run requests")
	}

	if c.retention > 0 {
		go c.trimLoop(ctx)
	}

	for ctx.Err() == nil {
		if err := c.consume(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("stream", c.streamKey).Msg("Error consuming run requests")
			select {
			case <-ctx.Done():
			case <-time.After(consumePause):
			}
		}
	}
	return ctx.Err()
}

// createConsumerGroup creates the group at the stream tail, so only requests
// published afterwards are delivered. An existing group is left untouched.
func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.group, "$").Err()
	switch {
	case err == nil:
		log.Info().Str("group", c.group).Str("stream", c.streamKey).Msg("Created consumer group")
		return nil
	case strings.HasPrefix(err.Error(), "BUSYGROUP"):
		return nil
	default:
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}
}

// recoverPEL claims requests idle in other consumers' pending lists and runs
// them again.
func (c *Consumer) recoverPEL(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.streamKey,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  claimMinIdle,
			Start:    start,
			Count:    claimBatch,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("failed to claim pending run requests: %w", err)
		}

		if len(msgs) > 0 {
			log.Info().Int("claimed", len(msgs)).Msg("Claimed idle run requests")
		}
		c.handleAll(ctx, msgs)

		if next == "0-0" || next == "" || ctx.Err() != nil {
			return nil
		}
		start = next
	}
}

// consume reads one batch of new requests, recovering the pending list first
// when it is due.
func (c *Consumer) consume(ctx context.Context) error {
	if time.Now().After(c.nextRecovery) {
		if err := c.recoverPEL(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover pending run requests")
		}
		c.nextRecovery = time.Now().Add(recoverEvery)
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.streamKey, ">"},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", c.streamKey, err)
	}

	for _, s := range streams {
		if s.Stream == c.streamKey {
			c.handleAll(ctx, s.Messages)
		}
	}
	return nil
}

func (c *Consumer) handleAll(ctx context.Context, msgs []redis.XMessage) {
	for i := range msgs {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx, &msgs[i]); err != nil {
			log.Error().Err(err).Str("messageId", msgs[i].ID).Msg("Run request failed")
		}
	}
}

// processMessage runs one request. The message is acknowledged once it is
// done with: completed, malformed, or dead lettered. A run interrupted by
// shutdown stays pending.
func (c *Consumer) processMessage(ctx context.Context, msg *redis.XMessage) error {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	req, err := ParseRunRequest(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		return errors.Join(err, c.acknowledge(ctx, msg.ID))
	}

	runErr := c.retryHandler.RetryWithBackoff(ctx, func() error {
		_, err := c.runner.Run(ctx, req.ContestSlug)
		return err
	}, msg.ID, msg.Values)
	if runErr != nil && ctx.Err() != nil {
		return runErr
	}

	log.Info().
		Str("messageId", msg.ID).
		Str("contestSlug", req.ContestSlug).
		Bool("deadLettered", runErr != nil).
		Msg("Finished run request")
	return errors.Join(runErr, c.acknowledge(ctx, msg.ID))
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.streamKey, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge %s: %w", messageID, err)
	}
	return nil
}

// trimLoop drops stream entries older than the retention window, once at
// startup and then every trimEvery.
func (c *Consumer) trimLoop(ctx context.Context) {
	ticker := time.NewTicker(trimEvery)
	defer ticker.Stop()

	for {
		if err := c.trim(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to trim run request stream")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Consumer) trim(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retention)
	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, fmt.Sprintf("%d-0", cutoff.UnixMilli())).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream %s: %w", c.streamKey, err)
	}
	if trimmed > 0 {
		log.Debug().Int64("trimmed", trimmed).Time("cutoff", cutoff).Msg("Trimmed run request stream")
	}
	return nil
}
