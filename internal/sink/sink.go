package sink

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/rs/zerolog/log"
)

// Sink persists contest metadata and plagiarism records.
type Sink interface {
	SaveContest(ctx context.Context, contest *models.Contest) error
	DeliverQuestion(ctx context.Context, questionID int, records []models.PlagiarismRecord) error
	Close(ctx context.Context) error
}

// BatchFailure is a question batch that could not be delivered.
type BatchFailure struct {
	QuestionID int
	Records    int
	Err        error
}

type DeliveryReport struct {
	Batches   int
	Delivered int
	Failures  []BatchFailure
}

// Err joins the batch failures, or returns nil when every batch was delivered.
func (r DeliveryReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("question %d (%d records): %w", f.QuestionID, f.Records, f.Err))
	}
	return errors.Join(errs...)
}

// Deliver splits records by question id and hands each batch to the sink.
// Batches are independent: a failed batch is recorded and the rest still go out.
func Deliver(ctx context.Context, s Sink, records []models.PlagiarismRecord) DeliveryReport {
	batches := make(map[int][]models.PlagiarismRecord)
	for _, r := range records {
		batches[r.QuestionID] = append(batches[r.QuestionID], r)
	}

	questionIDs := make([]int, 0, len(batches))
	for id := range batches {
		questionIDs = append(questionIDs, id)
	}
	slices.Sort(questionIDs)

	report := DeliveryReport{Batches: len(batches)}
	for _, id := range questionIDs {
		batch := batches[id]

		err := ctx.Err()
		if err == nil {
			err = s.DeliverQuestion(ctx, id, batch)
		}
		if err != nil {
			log.Error().Err(err).Int("questionId", id).Int("records", len(batch)).Msg("Failed to deliver records")
			report.Failures = append(report.Failures, BatchFailure{QuestionID: id, Records: len(batch), Err: err})
			continue
		}

		report.Delivered += len(batch)
		log.Info().Int("questionId", id).Int("records", len(batch)).Msg("Delivered records")
	}

	return report
}
