package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/contestguard/internal/artifacts"
	"github.com/RishiKendai/contestguard/internal/crawler"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/RishiKendai/contestguard/internal/plagiarism"
	"github.com/RishiKendai/contestguard/internal/sink"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	base = "https://leetcode.test"
	slug = "weekly-contest-7"
)

const solution = `
class Solution:
    def minimumCost(self, nums, k):
        best = float("inf")
        for i in range(len(nums)):
            total = 0
            for j in range(i, min(len(nums), i + k)):
                total += nums[j] * (j - i + 1)
            best = min(best, total)
        return best
`

type mapFetcher map[string]any

func (m mapFetcher) FetchJSON(ctx context.Context, url string, out any) error {
	v, ok := m[url]
	if !ok {
		return fmt.Errorf("no fixture for %s", url)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func rankingURL(page int) string {
	return fmt.Sprintf("%s/contest/api/ranking/%s/?pagination=%d&region=global", base, slug, page)
}

var questions = []map[string]any{
	{"id": 1, "question_id": 3001},
	{"id": 2, "question_id": 3002},
	{"id": 3, "question_id": 3003},
	{"id": 4, "question_id": 3004},
}

func contestFixture(users ...string) mapFetcher {
	m := mapFetcher{}
	var totalRank, rows []map[string]any
	for i, u := range users {
		sid := int64(500 + i)
		totalRank = append(totalRank, map[string]any{"username": u, "user_slug": u, "rank": i + 1})
		rows = append(rows, map[string]any{
			"3003": map[string]any{"submission_id": sid, "question_id": 3003, "lang": "python3"},
		})
		m[fmt.Sprintf("%s/api/submissions/%d", base, sid)] = map[string]any{"code": solution, "lang": "python3"}
	}
	m[rankingURL(1)] = map[string]any{"questions": questions, "submissions": rows, "total_rank": totalRank}
	m[rankingURL(2)] = map[string]any{"questions": questions, "submissions": []any{}, "total_rank": []any{}}
	return m
}

type recordingSink struct {
	mu       sync.Mutex
	contests []models.Contest
	records  map[int][]models.PlagiarismRecord
	closed   bool
}

func (s *recordingSink) SaveContest(ctx context.Context, contest *models.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests = append(s.contests, *contest)
	return nil
}

func (s *recordingSink) DeliverQuestion(ctx context.Context, questionID int, records []models.PlagiarismRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = map[int][]models.PlagiarismRecord{}
	}
	s.records[questionID] = append(s.records[questionID], records...)
	return nil
}

func (s *recordingSink) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func newTestRunner(t *testing.T, fetcher crawler.JSONFetcher, status StatusTracker) (*Runner, *recordingSink, string) {
	t.Helper()

	out := &recordingSink{}
	pool := plagiarism.NewWorkerPool(context.Background(), 2)
	t.Cleanup(pool.Close)

	dir := t.TempDir()
	runner := NewRunner(fetcher, func(ctx context.Context, contestSlug string) (sink.Sink, error) {
		return out, nil
	}, status, pool, Options{
		Crawler:      crawler.Options{BaseURL: base, PageLimit: 5, Workers: 2, ExcludedRegion: "CN"},
		Detect:       plagiarism.DefaultDetectOptions(),
		ArtifactsDir: dir,
	})
	return runner, out, dir
}

func newRedisTracker(t *testing.T) (*RedisStatusTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStatusTracker(client), mr
}

func TestRunDeliversRecordsAndTracksStatus(t *testing.T) {
	tracker, _ := newRedisTracker(t)
	runner, out, dir := newTestRunner(t, contestFixture("alice", "bob"), tracker)

	report, err := runner.Run(context.Background(), slug)
	require.NoError(t, err)

	require.Equal(t, 2, report.Crawl.Acquired)
	require.Equal(t, 2, report.Detection.Matches)
	require.Equal(t, 2, report.Delivery.Delivered)
	require.Equal(t, 3003, report.Targets[0].QuestionID)
	require.NotEmpty(t, report.RunID)

	require.Len(t, out.records[3003], 2)
	require.InDelta(t, 100.0, out.records[3003][0].ConfidenceScore, 1e-9)
	require.Len(t, out.contests, 1)
	require.Equal(t, "3003", out.contests[0].Question3)
	require.Equal(t, "3004", out.contests[0].Question4)
	require.Equal(t, base+"/contest/"+slug, out.contests[0].ContestLink)
	require.True(t, out.closed)

	step, err := tracker.GetStatus(context.Background(), slug)
	require.NoError(t, err)
	require.Equal(t, models.StepCompleted, step)

	subs, err := artifacts.Load(artifacts.PathFor(dir, slug))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	pointer, err := artifacts.LoadContestSlug(dir)
	require.NoError(t, err)
	require.Equal(t, slug, pointer)
}

func TestRunFailsWhenTargetsUnresolved(t *testing.T) {
	tracker, _ := newRedisTracker(t)
	runner, out, _ := newTestRunner(t, mapFetcher{}, tracker)

	_, err := runner.Run(context.Background(), slug)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, models.StepCrawling, stageErr.Stage)
	require.ErrorIs(t, err, crawler.ErrTargetQuestionsUnresolved)
	require.Empty(t, out.contests)

	step, err := tracker.GetStatus(context.Background(), slug)
	require.NoError(t, err)
	require.Equal(t, models.StepFailed, step)
}

func TestRunFailsWithoutSubmissions(t *testing.T) {
	runner, out, _ := newTestRunner(t, contestFixture(), nil)

	_, err := runner.Run(context.Background(), slug)
	require.ErrorIs(t, err, ErrNoSubmissions)
	require.Empty(t, out.records)
}

func TestAnalyzeDeliversFromArtifacts(t *testing.T) {
	runner, out, _ := newTestRunner(t, mapFetcher{}, nil)

	subs := []models.Submission{
		{Username: "a", UserSlug: "a", ContestRank: 1, QuestionID: 3004, Language: "python3", Code: solution, SubmissionID: "1"},
		{Username: "b", UserSlug: "b", ContestRank: 2, QuestionID: 3004, Language: "python3", Code: solution, SubmissionID: "2"},
		{Username: "c", UserSlug: "c", ContestRank: 3, QuestionID: 3003, Language: "python3", Code: "print(1)", SubmissionID: "3"},
	}
	report, err := runner.Analyze(context.Background(), slug, subs)
	require.NoError(t, err)
	require.Equal(t, 2, report.Delivery.Delivered)
	require.Len(t, out.records[3004], 2)
	require.Equal(t, "3003", out.contests[0].Question3)
	require.Equal(t, "3004", out.contests[0].Question4)

	_, err = runner.Analyze(context.Background(), slug, nil)
	require.ErrorIs(t, err, ErrNoSubmissions)
}

func TestRedisStatusTracker(t *testing.T) {
	tracker, mr := newRedisTracker(t)
	ctx := context.Background()

	step, err := tracker.GetStatus(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, models.StepIdle, step)

	require.NoError(t, tracker.UpdateStatus(ctx, slug, models.StepDetecting))
	require.Equal(t, 12*time.Hour, mr.TTL(StatusKey(slug)))

	step, err = tracker.GetStatus(ctx, slug)
	require.NoError(t, err)
	require.Equal(t, models.StepDetecting, step)

	require.Error(t, tracker.UpdateStatus(ctx, slug, models.Step("bogus")))
}

func TestStageErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := error(&StageError{Stage: models.StepDelivering, Processed: 3, Err: inner})
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "delivering stage failed after 3 items")
}

func TestRunnerRejectsUnsafeContestSlugs(t *testing.T) {
	runner, out, dir := newTestRunner(t, contestFixture("alice", "bob"), nil)
	ctx := context.Background()

	for _, bad := range []string{"../escape", "Weekly-Contest-1", "a/b", ""} {
		_, err := runner.Run(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidContestSlug, bad)

		_, err = runner.Acquire(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidContestSlug, bad)

		_, err = runner.Analyze(ctx, bad, []models.Submission{{QuestionID: 1, SubmissionID: "1"}})
		require.ErrorIs(t, err, ErrInvalidContestSlug, bad)
	}

	require.Empty(t, out.contests)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, ValidateContestSlug("biweekly-contest-120"))
}

func TestAnalyzeSingleQuestionLeavesSecondEmpty(t *testing.T) {
	runner, out, _ := newTestRunner(t, mapFetcher{}, nil)

	subs := []models.Submission{
		{Username: "a", UserSlug: "a", ContestRank: 1, QuestionID: 3004, Language: "python3", Code: solution, SubmissionID: "1"},
		{Username: "b", UserSlug: "b", ContestRank: 2, QuestionID: 3004, Language: "python3", Code: solution, SubmissionID: "2"},
	}
	_, err := runner.Analyze(context.Background(), slug, subs)
	require.NoError(t, err)

	require.Len(t, out.contests, 1)
	require.Equal(t, "3004", out.contests[0].Question3)
	require.Empty(t, out.contests[0].Question4)
}
