package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/RishiKendai/contestguard/internal/artifacts"
	"github.com/RishiKendai/contestguard/internal/crawler"
	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/RishiKendai/contestguard/internal/plagiarism"
	"github.com/RishiKendai/contestguard/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	contestDateLayout = "January 02, 2006, 03:04 PM"
	deliveryTimeout   = time.Minute
)

// SinkFactory opens the sink receiving the results of one contest.
type SinkFactory func(ctx context.Context, contestSlug string) (sink.Sink, error)

type Options struct {
	Crawler      crawler.Options
	Detect       plagiarism.DetectOptions
	ArtifactsDir string
}

// RunReport summarizes one pipeline execution.
type RunReport struct {
	RunID       string
	ContestSlug string
	Targets     [2]models.QuestionRef
	Crawl       crawler.CrawlStats
	Detection   plagiarism.DetectionStats
	Delivery    sink.DeliveryReport
	Duration    time.Duration
}

// Acquisition is the result of the crawl stage.
type Acquisition struct {
	Targets     [2]models.QuestionRef
	Submissions []models.Submission
	Stats       crawler.CrawlStats
}

type Runner struct {
	fetcher    crawler.JSONFetcher
	newSink    SinkFactory
	status     StatusTracker
	workerPool *plagiarism.WorkerPool
	opts       Options
}

func NewRunner(
	fetcher crawler.JSONFetcher,
	newSink SinkFactory,
	status StatusTracker,
	workerPool *plagiarism.WorkerPool,
	opts Options,
) *Runner {
	if status == nil {
		status = NoopStatusTracker{}
	}
	return &Runner{
		fetcher:    fetcher,
		newSink:    newSink,
		status:     status,
		workerPool: workerPool,
		opts:       opts,
	}
}

func (r *Runner) setStatus(ctx context.Context, contestSlug string, step models.Step) {
	if err := r.status.UpdateStatus(ctx, contestSlug, step); err != nil {
		log.Warn().Err(err).Str("contestSlug", contestSlug).Str("step", string(step)).Msg("Failed to record run status")
	}
}

// Acquire resolves the target questions and crawls their submissions into the
// contest artifact file. Submissions gathered before a failure are returned
// along with the *StageError.
func (r *Runner) Acquire(ctx context.Context, contestSlug string) (*Acquisition, error) {
	if err := ValidateContestSlug(contestSlug); err != nil {
		return nil, err
	}
	r.setStatus(ctx, contestSlug, models.StepCrawling)

	c := crawler.New(r.fetcher, nil, r.opts.Crawler)
	targets, err := c.SelectTargetQuestions(ctx, contestSlug)
	if err != nil {
		return nil, &StageError{Stage: models.StepCrawling, Err: err}
	}

	store, err := artifacts.OpenCSV(r.opts.ArtifactsDir, contestSlug)
	if err != nil {
		return nil, &StageError{Stage: models.StepCrawling, Err: err}
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Str("path", store.Path()).Msg("Failed to close artifact file")
		}
	}()

	if err := artifacts.SaveContestSlug(r.opts.ArtifactsDir, contestSlug); err != nil {
		log.Warn().Err(err).Msg("Failed to record contest pointer")
	}

	subs, stats, err := crawler.New(r.fetcher, store, r.opts.Crawler).Crawl(ctx, contestSlug, targets)
	acq := &Acquisition{Targets: targets, Submissions: subs, Stats: stats}

	log.Info().
		Str("contestSlug", contestSlug).
		Int("pages", stats.Pages).
		Int("acquired", stats.Acquired).
		Int("skipped", stats.Skipped).
		Int("filtered", stats.Filtered).
		Str("artifact", store.Path()).
		Msg("Acquisition finished")

	if err != nil {
		return acq, &StageError{Stage: models.StepCrawling, Processed: len(subs), Err: err}
	}
	if len(subs) == 0 {
		return acq, &StageError{Stage: models.StepCrawling, Err: ErrNoSubmissions}
	}
	return acq, nil
}

// Analyze groups, compares and delivers already acquired submissions. The
// contest record lists the two lowest question ids found in subs.
func (r *Runner) Analyze(ctx context.Context, contestSlug string, subs []models.Submission) (*RunReport, error) {
	if err := ValidateContestSlug(contestSlug); err != nil {
		return nil, err
	}
	report := &RunReport{RunID: uuid.NewString(), ContestSlug: contestSlug}
	start := time.Now()

	if len(subs) == 0 {
		return report, &StageError{Stage: models.StepGrouping, Err: ErrNoSubmissions}
	}
	report.Targets = questionsOf(subs)
	if report.Targets[1].QuestionID == 0 {
		log.Warn().
			Str("contestSlug", contestSlug).
			Int("questionId", report.Targets[0].QuestionID).
			Msg("Submissions cover a single question, contest record lists only one")
	}

	err := r.analyze(ctx, contestSlug, subs, report)
	report.Duration = time.Since(start)
	r.finish(ctx, report, err)
	return report, err
}

// Run executes acquisition and analysis for a contest.
func (r *Runner) Run(ctx context.Context, contestSlug string) (*RunReport, error) {
	if err := ValidateContestSlug(contestSlug); err != nil {
		return nil, err
	}
	report := &RunReport{RunID: uuid.NewString(), ContestSlug: contestSlug}
	start := time.Now()

	log.Info().Str("runId", report.RunID).Str("contestSlug", contestSlug).Msg("Starting contest run")
	r.setStatus(ctx, contestSlug, models.StepInitiated)

	acq, acqErr := r.Acquire(ctx, contestSlug)
	if acq != nil {
		report.Targets = acq.Targets
		report.Crawl = acq.Stats
	}
	if acq == nil || len(acq.Submissions) == 0 {
		report.Duration = time.Since(start)
		r.finish(ctx, report, acqErr)
		return report, acqErr
	}

	err := r.analyze(ctx, contestSlug, acq.Submissions, report)
	if acqErr != nil {
		err = acqErr
	}
	report.Duration = time.Since(start)
	r.finish(ctx, report, err)
	return report, err
}

func (r *Runner) analyze(ctx context.Context, contestSlug string, subs []models.Submission, report *RunReport) error {
	r.setStatus(ctx, contestSlug, models.StepGrouping)
	groups := plagiarism.Group(subs)
	log.Info().
		Str("contestSlug", contestSlug).
		Int("submissions", len(subs)).
		Int("groups", len(groups)).
		Msg("Grouped submissions")

	r.setStatus(ctx, contestSlug, models.StepDetecting)
	records, stats, detectErr := plagiarism.ComputePlagiarism(ctx, groups, r.opts.Detect, r.workerPool)
	report.Detection = stats

	r.setStatus(ctx, contestSlug, models.StepAggregating)
	plagiarism.RankRecords(records)

	// Records computed before a cancellation are still delivered.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	r.setStatus(deliverCtx, contestSlug, models.StepDelivering)

	if err := r.deliver(deliverCtx, contestSlug, records, report); err != nil {
		if detectErr != nil {
			return &StageError{Stage: models.StepDetecting, Processed: stats.Compared, Err: errors.Join(detectErr, err)}
		}
		return err
	}

	if detectErr != nil {
		return &StageError{Stage: models.StepDetecting, Processed: stats.Compared, Err: detectErr}
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, contestSlug string, records []models.PlagiarismRecord, report *RunReport) error {
	out, err := r.newSink(ctx, contestSlug)
	if err != nil {
		return &StageError{Stage: models.StepDelivering, Err: fmt.Errorf("failed to open sink: %w", err)}
	}
	defer func() {
		if err := out.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close sink")
		}
	}()

	contest := &models.Contest{
		ContestName: contestSlug,
		ContestLink: crawler.ContestLink(r.opts.Crawler.BaseURL, contestSlug),
		ContestDate: time.Now().Format(contestDateLayout),
		Question3:   questionLabel(report.Targets[0]),
		Question4:   questionLabel(report.Targets[1]),
		CreatedAt:   time.Now().UTC(),
	}
	if err := out.SaveContest(ctx, contest); err != nil {
		log.Error().Err(err).Str("contestSlug", contestSlug).Msg("Failed to save contest")
	}

	report.Delivery = sink.Deliver(ctx, out, records)
	if failures := len(report.Delivery.Failures); failures > 0 {
		log.Warn().
			Str("contestSlug", contestSlug).
			Int("failedBatches", failures).
			Err(report.Delivery.Err()).
			Msg("Some record batches were not delivered")
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, report *RunReport, err error) {
	statusCtx := context.WithoutCancel(ctx)
	metrics.RunDuration.Observe(report.Duration.Seconds())

	if err != nil {
		metrics.RunCount.WithLabelValues("failed").Inc()
		r.setStatus(statusCtx, report.ContestSlug, models.StepFailed)

		event := log.Error().Err(err).Str("runId", report.RunID).Str("contestSlug", report.ContestSlug)
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			event = event.Str("stage", string(stageErr.Stage)).Int("processed", stageErr.Processed)
		}
		event.Msg("Contest run failed")
		return
	}

	metrics.RunCount.WithLabelValues("completed").Inc()
	r.setStatus(statusCtx, report.ContestSlug, models.StepCompleted)
	log.Info().
		Str("runId", report.RunID).
		Str("contestSlug", report.ContestSlug).
		Int("submissions", report.Crawl.Acquired).
		Int("matches", report.Detection.Matches).
		Int("delivered", report.Delivery.Delivered).
		Dur("duration", report.Duration).
		Msg("Contest run completed")
}

// questionsOf returns the two smallest question ids present in subs.
func questionsOf(subs []models.Submission) [2]models.QuestionRef {
	var ids []int
	for _, s := range subs {
		if !slices.Contains(ids, s.QuestionID) {
			ids = append(ids, s.QuestionID)
		}
	}
	slices.Sort(ids)

	var refs [2]models.QuestionRef
	for i := 0; i < len(ids) && i < 2; i++ {
		refs[i] = models.QuestionRef{QuestionID: ids[i]}
	}
	return refs
}

// questionLabel is the stored form of a question id, empty when unknown.
func questionLabel(q models.QuestionRef) string {
	if q.QuestionID == 0 {
		return ""
	}
	return strconv.Itoa(q.QuestionID)
}
