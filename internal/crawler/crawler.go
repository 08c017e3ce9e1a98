package crawler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrTargetQuestionsUnresolved means the two analysed questions could not be determined.
	ErrTargetQuestionsUnresolved = errors.New("target questions could not be resolved")

	errMissingCode = errors.New("submission response has no code")
)

// JSONFetcher is the network primitive the crawler depends on.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, url string, out any) error
}

// ArtifactWriter durably records each acquired submission.
type ArtifactWriter interface {
	Append(sub *models.Submission) error
}

type Options struct {
	BaseURL        string
	PageLimit      int
	Workers        int
	ExcludedRegion string
	MaxCodeBytes   int
}

// CrawlStats counts what happened during a crawl.
type CrawlStats struct {
	Pages        int
	PagesSkipped int
	Stubs        int
	Filtered     int
	Skipped      int
	Acquired     int
}

type Crawler struct {
	fetcher JSONFetcher
	writer  ArtifactWriter
	opts    Options
}

func New(fetcher JSONFetcher, writer ArtifactWriter, opts Options) *Crawler {
	if opts.PageLimit <= 0 {
		opts.PageLimit = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Crawler{
		fetcher: fetcher,
		writer:  writer,
		opts:    opts,
	}
}

// ContestLink is the public page of a contest.
func ContestLink(baseURL, contestSlug string) string {
	return fmt.Sprintf("%s/contest/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(contestSlug))
}

func (c *Crawler) rankingURL(contestSlug string, page int) string {
	return fmt.Sprintf("%s/contest/api/ranking/%s/?pagination=%d&region=global", c.opts.BaseURL, url.PathEscape(contestSlug), page)
}

func (c *Crawler) submissionURL(submissionID string) string {
	return fmt.Sprintf("%s/api/submissions/%s", c.opts.BaseURL, url.PathEscape(submissionID))
}

// SelectTargetQuestions returns the two questions analysed for a contest: the
// 3rd and 4th by ascending internal id, or the last two when the contest has
// fewer than four questions.
func (c *Crawler) SelectTargetQuestions(ctx context.Context, contestSlug string) ([2]models.QuestionRef, error) {
	var page models.RankingResponse
	if err := c.fetcher.FetchJSON(ctx, c.rankingURL(contestSlug, 1), &page); err != nil {
		return [2]models.QuestionRef{}, fmt.Errorf("%w: %w", ErrTargetQuestionsUnresolved, err)
	}

	targets, err := selectTargets(contestSlug, page.Questions)
	if err != nil {
		return targets, err
	}

	log.Info().
		Str("contestSlug", contestSlug).
		Int("question3", targets[0].QuestionID).
		Int("question4", targets[1].QuestionID).
		Msg("Selected target questions")

	return targets, nil
}

func selectTargets(contestSlug string, questions []models.RankingQuestion) ([2]models.QuestionRef, error) {
	var targets [2]models.QuestionRef
	if len(questions) < 2 {
		return targets, fmt.Errorf("%w: contest %s lists %d questions", ErrTargetQuestionsUnresolved, contestSlug, len(questions))
	}

	refs := make([]models.QuestionRef, len(questions))
	for i, q := range questions {
		refs[i] = models.QuestionRef{
			ID:              q.ID,
			QuestionID:      q.QuestionID,
			Title:           q.Title,
			TitleSlug:       q.TitleSlug,
			NumberInContest: i + 1,
		}
	}
	slices.SortStableFunc(refs, func(a, b models.QuestionRef) int {
		return cmp.Compare(a.ID, b.ID)
	})

	start := 2
	if len(refs) < 4 {
		start = len(refs) - 2
	}
	copy(targets[:], refs[start:start+2])
	return targets, nil
}

// Crawl walks the ranking pages in order and returns every submission of the
// target questions whose code could be fetched. Pages stop at the first empty
// page or at the page limit. Single submission or page failures are logged
// and skipped. The returned error is only set on cancellation or when the
// artifact writer fails; the submissions collected so far are returned with it.
func (c *Crawler) Crawl(ctx context.Context, contestSlug string, targets [2]models.QuestionRef) ([]models.Submission, CrawlStats, error) {
	var stats CrawlStats
	var submissions []models.Submission

	filter := StubFilter{
		Targets: map[int]bool{
			targets[0].QuestionID: true,
			targets[1].QuestionID: true,
		},
		ExcludedRegion: c.opts.ExcludedRegion,
		OnExcluded: func(SubmissionStub) {
			stats.Filtered++
			metrics.SubmissionsAcquired.WithLabelValues("filtered").Inc()
		},
	}

	log.Info().Str("contestSlug", contestSlug).Msg("Fetching submissions for contest")

	for page := 1; page <= c.opts.PageLimit; page++ {
		if err := ctx.Err(); err != nil {
			return submissions, stats, err
		}

		var resp models.RankingResponse
		if err := c.fetcher.FetchJSON(ctx, c.rankingURL(contestSlug, page), &resp); err != nil {
			if ctx.Err() != nil {
				return submissions, stats, ctx.Err()
			}
			stats.PagesSkipped++
			log.Error().Err(err).Str("contestSlug", contestSlug).Int("page", page).Msg("Skipping ranking page")
			continue
		}

		if len(resp.Submissions) == 0 {
			log.Info().Str("contestSlug", contestSlug).Int("page", page).Msg("Reached end of ranking")
			break
		}

		stats.Pages++
		log.Info().Str("contestSlug", contestSlug).Int("page", page).Msg("Processing page")

		stubs := slices.Collect(Stubs(&resp, filter))
		stats.Stubs += len(stubs)

		pageSubs, skipped, err := c.fetchPage(ctx, stubs)
		stats.Skipped += skipped
		stats.Acquired += len(pageSubs)
		submissions = append(submissions, pageSubs...)
		if err != nil {
			return submissions, stats, err
		}

		log.Info().
			Str("contestSlug", contestSlug).
			Int("page", page).
			Int("acquired", len(pageSubs)).
			Int("skipped", skipped).
			Msg("Fetched submissions from page")
	}

	return submissions, stats, nil
}

// fetchPage fetches the code of all stubs of one page with at most Workers
// requests in flight, keeping stub order in the result.
func (c *Crawler) fetchPage(ctx context.Context, stubs []SubmissionStub) ([]models.Submission, int, error) {
	results := make([]*models.Submission, len(stubs))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i, stub := range stubs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sub, err := c.fetchSubmission(gctx, stub)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				skipped.Add(1)
				metrics.SubmissionsAcquired.WithLabelValues("skipped").Inc()
				log.Warn().
					Err(err).
					Str("submissionId", stub.SubmissionID).
					Str("user", stub.User.UserSlug).
					Msg("Skipping submission")
				return nil
			}

			if err := c.writer.Append(sub); err != nil {
				return fmt.Errorf("failed to record submission %s: %w", sub.SubmissionID, err)
			}
			metrics.SubmissionsAcquired.WithLabelValues("acquired").Inc()
			results[i] = sub
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	out := make([]models.Submission, 0, len(results))
	for _, sub := range results {
		if sub != nil {
			out = append(out, *sub)
		}
	}
	return out, int(skipped.Load()), err
}

func (c *Crawler) fetchSubmission(ctx context.Context, stub SubmissionStub) (*models.Submission, error) {
	var detail models.SubmissionDetail
	if err := c.fetcher.FetchJSON(ctx, c.submissionURL(stub.SubmissionID), &detail); err != nil {
		return nil, err
	}
	if detail.Code == nil {
		return nil, errMissingCode
	}

	language := stub.Language
	if detail.Lang != nil && *detail.Lang != "" {
		language = *detail.Lang
	}
	if language == "" {
		language = "unknown"
	}

	return &models.Submission{
		Username:     stub.User.Username,
		UserSlug:     stub.User.UserSlug,
		ContestRank:  stub.User.Rank,
		QuestionID:   stub.QuestionID,
		Language:     language,
		Code:         truncateCode(*detail.Code, c.opts.MaxCodeBytes),
		SubmissionID: stub.SubmissionID,
	}, nil
}

// truncateCode caps code at limit bytes without splitting a rune.
func truncateCode(code string, limit int) string {
	if limit <= 0 || len(code) <= limit {
		return code
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(code[cut]) {
		cut--
	}
	return code[:cut]
}
