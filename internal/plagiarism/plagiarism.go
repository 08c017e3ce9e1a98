package plagiarism

import (
	"context"
	"time"

	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/rs/zerolog/log"
)

// GroupResult is the outcome of detecting one group.
type GroupResult struct {
	Key      models.GroupKey
	Size     int
	Matches  int
	Records  []models.PlagiarismRecord
	Duration time.Duration
}

// DetectionStats summarizes a ComputePlagiarism call.
type DetectionStats struct {
	Groups   int
	Compared int
	Matches  int
	Records  int
}

// GroupJob represents a job for the worker pool
type GroupJob struct {
	Group      models.SubmissionGroup
	Options    DetectOptions
	ResultChan chan<- GroupResult
}

// Execute runs detection and aggregation for one group
func (j *GroupJob) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	matches := Detect(j.Group.Submissions, j.Group.Key.Language, j.Options)
	records := Aggregate(matches, j.Group)
	elapsed := time.Since(start)

	metrics.GroupDuration.Observe(elapsed.Seconds())
	metrics.MatchesDetected.WithLabelValues(j.Group.Key.Language).Add(float64(len(matches)))

	log.Debug().
		Int("questionId", j.Group.Key.QuestionID).
		Str("language", j.Group.Key.Language).
		Int("submissions", len(j.Group.Submissions)).
		Int("matches", len(matches)).
		Dur("elapsed", elapsed).
		Msg("Group detection finished")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.ResultChan <- GroupResult{
		Key:      j.Group.Key,
		Size:     len(j.Group.Submissions),
		Matches:  len(matches),
		Records:  records,
		Duration: elapsed,
	}:
		return nil
	}
}

// ComputePlagiarism detects every group with two or more submissions on the
// worker pool and returns the records ordered by group key. On cancellation
// the records of the groups finished so far are returned with ctx.Err().
func ComputePlagiarism(
	ctx context.Context,
	groups map[models.GroupKey][]*models.Submission,
	opts DetectOptions,
	workerPool *WorkerPool,
) ([]models.PlagiarismRecord, DetectionStats, error) {
	stats := DetectionStats{Groups: len(groups)}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	keys := SortedKeys(groups)

	resultChan := make(chan GroupResult, len(keys))
	submitted := 0
	var submitErr error

	for _, key := range keys {
		subs := groups[key]
		if len(subs) < 2 {
			continue
		}

		job := &GroupJob{
			Group:      models.SubmissionGroup{Key: key, Submissions: subs},
			Options:    opts,
			ResultChan: resultChan,
		}
		if err := workerPool.Submit(job); err != nil {
			log.Error().Err(err).Msg("Failed to submit job")
			submitErr = err
			break
		}
		submitted++
	}

	results := make(map[models.GroupKey]GroupResult, submitted)
	var waitErr error
collect:
	for len(results) < submitted {
		select {
		case <-ctx.Done():
			waitErr = ctx.Err()
			break collect
		case result := <-resultChan:
			results[result.Key] = result
		}
	}

	var records []models.PlagiarismRecord
	for _, key := range keys {
		result, ok := results[key]
		if !ok {
			continue
		}
		stats.Compared++
		stats.Matches += result.Matches
		records = append(records, result.Records...)
	}
	stats.Records = len(records)

	if waitErr != nil {
		return records, stats, waitErr
	}
	return records, stats, submitErr
}
