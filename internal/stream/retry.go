package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DeadLetter is a message that kept failing, as stored in the dead letter list.
type DeadLetter struct {
	MessageID string                 `json:"message_id"`
	Fields    map[string]interface{} `json:"fields"`
	Error     string                 `json:"error"`
	Attempts  int                    `json:"attempts"`
	FailedAt  time.Time              `json:"failed_at"`
}

type RetryHandler struct {
	client        *redis.Client
	deadLetterKey string
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewRetryHandler(client *redis.Client, deadLetterKey string) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxAttempts:   3,
		baseDelay:     2 * time.Second,
		maxDelay:      30 * time.Second,
	}
}

// RetryWithBackoff calls fn until it succeeds or maxAttempts is reached,
// doubling the delay between attempts. Exhausted messages are pushed to the
// dead letter list.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var err error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn().
			Err(err).
			Str("messageId", messageID).
			Int("attempt", attempt).
			Int("max_attempts", h.maxAttempts).
			Msg("Processing failed")

		if attempt == h.maxAttempts {
			break
		}

		delay := min(h.baseDelay<<(attempt-1), h.maxDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if dlqErr := h.sendToDeadLetter(ctx, messageID, fields, err); dlqErr != nil {
		log.Error().Err(dlqErr).Str("messageId", messageID).Msg("Failed to move message to dead letter queue")
	}

	return fmt.Errorf("failed after %d attempts: %w", h.maxAttempts, err)
}

func (h *RetryHandler) sendToDeadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error {
	payload, err := json.Marshal(DeadLetter{
		MessageID: messageID,
		Fields:    fields,
		Error:     cause.Error(),
		Attempts:  h.maxAttempts,
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	if err := h.client.LPush(ctx, h.deadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}

	log.Warn().
		Str("messageId", messageID).
		Str("dead_letter_key", h.deadLetterKey).
		Msg("Message moved to dead letter queue")
	return nil
}

// DeadLetters returns up to limit dead letters, newest first.
func (h *RetryHandler) DeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	raw, err := h.client.LRange(ctx, h.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed dead letter")
			continue
		}
		letters = append(letters, dl)
	}
	return letters, nil
}
