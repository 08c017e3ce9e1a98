package plagiarism

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/stretchr/testify/require"
)

const twoSum = `
class Solution:
    def twoSum(self, nums, target):
        # remember every value we have seen
        seen = {}
        for i, value in enumerate(nums):
            need = target - value
            if need in seen:
                return [seen[need], i]
            seen[value] = i
        return []

    def countPairs(self, nums, k):
        total = 0
        for i in range(len(nums)):
            for j in range(i + 1, len(nums)):
                if (nums[i] + nums[j]) % k == 0:
                    total += 1
        return total
`

// renamed copy of twoSum with different identifiers and comments
const twoSumRenamed = `
class Solution:
    def findPair(self, arr, goal):
        lookup = {}  # value -> index
        for idx, x in enumerate(arr):
            rest = goal - x
            if rest in lookup:
                return [lookup[rest], idx]
            lookup[x] = idx
        return []

    def pairsDivisible(self, arr, m):
        cnt = 0
        for a in range(len(arr)):
            for b in range(a + 1, len(arr)):
                if (arr[a] + arr[b]) % m == 0:
                    cnt += 1
        return cnt
`

const unrelated = `
class Solution:
    def maxProfit(self, prices):
        best = 0
        low = float("inf")
        while prices:
            p = prices.pop()
            low = min(low, p)
            best = max(best, p - low)
        print("done", best, low)
        return best * 2 if best > 100 else best
`

func sub(id, user string, rank, question int, language, code string) models.Submission {
	return models.Submission{
		Username:     user,
		UserSlug:     user + "-slug",
		ContestRank:  rank,
		QuestionID:   question,
		Language:     language,
		Code:         code,
		SubmissionID: id,
	}
}

func pointers(subs []models.Submission) []*models.Submission {
	out := make([]*models.Submission, len(subs))
	for i := range subs {
		out[i] = &subs[i]
	}
	return out
}

func TestGroupPartitionsByQuestionAndLanguage(t *testing.T) {
	subs := []models.Submission{
		sub("1", "a", 1, 10, "python3", "x"),
		sub("2", "b", 2, 10, "cpp", "x"),
		sub("3", "c", 3, 10, "python3", "x"),
		sub("4", "d", 4, 11, "python3", "x"),
	}

	groups := Group(subs)
	require.Len(t, groups, 3)

	py := groups[models.GroupKey{QuestionID: 10, Language: "python3"}]
	require.Len(t, py, 2)
	require.Equal(t, "1", py[0].SubmissionID)
	require.Equal(t, "3", py[1].SubmissionID)

	total := 0
	for key, members := range groups {
		for _, m := range members {
			require.Equal(t, key.QuestionID, m.QuestionID)
			require.Equal(t, key.Language, m.Language)
		}
		total += len(members)
	}
	require.Equal(t, len(subs), total)

	require.Equal(t, []models.GroupKey{
		{QuestionID: 10, Language: "cpp"},
		{QuestionID: 10, Language: "python3"},
		{QuestionID: 11, Language: "python3"},
	}, SortedKeys(groups))

	require.Empty(t, Group(nil))
}

func TestTokenizeIgnoresRenamingAndComments(t *testing.T) {
	a := Tokenize(twoSum, "python3")
	b := Tokenize(twoSumRenamed, "python3")
	require.NotEmpty(t, a)
	require.Equal(t, a, b)
	require.NotContains(t, a, "seen")
	require.Contains(t, a, tokenName)
	require.Contains(t, a, tokenFunction)
}

const pairsCpp = `
class Solution {
public:
    int countPairs(vector<int>& nums, int target) {
        int total = 0;
        for (int value : nums) {
            if (value * 2 > target) total += value;
        }
        sort(nums.begin(), nums.end());
        int lo = 0, hi = nums.size() - 1;
        while (lo < hi) {
            if (nums[lo] + nums[hi] < target) { total++; lo++; } else { hi--; }
        }
        return total;
    }
};
`

const pairsCppRenamed = `
class Answer {
public:
    int pairsBelow(vector<int>& arr, int goal) {
        int cnt = 0;
        for (int x : arr) {
            if (x * 2 > goal) cnt += x; // odd tweak
        }
        sort(arr.begin(), arr.end());
        int l = 0, r = arr.size() - 1;
        while (l < r) {
            if (arr[l] + arr[r] < goal) { cnt++; l++; } else { r--; }
        }
        return cnt;
    }
};
`

const pairsJava = `
class Solution {
    private int seen;

    public int countPairs(int[] nums, int target) {
        int total = 0;
        for (int value : nums) {
            if (value * 2 > target) {
                total += value;
            }
        }
        this.seen = total;
        Arrays.sort(nums);
        return total;
    }
}
`

const pairsJavaRenamed = `
class Answer {
    private int memo;

    public int pairsBelow(int[] arr, int goal) {
        int cnt = 0;
        for (int x : arr) {
            if (x * 2 > goal) {
                cnt += x;
            }
        }
        this.memo = cnt;
        Arrays.sort(arr);
        return cnt;
    }
}
`

func TestTokenizeIgnoresRenamingInBracedLanguages(t *testing.T) {
	cases := []struct {
		language, original, renamed string
	}{
		{"cpp", pairsCpp, pairsCppRenamed},
		{"java", pairsJava, pairsJavaRenamed},
	}
	for _, tc := range cases {
		t.Run(tc.language, func(t *testing.T) {
			a := Tokenize(tc.original, tc.language)
			b := Tokenize(tc.renamed, tc.language)
			require.NotEmpty(t, a)
			require.Equal(t, a, b)
			require.NotContains(t, a, "value")
			require.NotContains(t, a, "Solution")
			require.Contains(t, a, tokenName)
		})
	}
}

func TestTokenizeKeepsBuiltins(t *testing.T) {
	tokens := Tokenize("for i in range(len(nums)):\n    print(i)\n", "python3")
	require.Contains(t, tokens, "range")
	require.Contains(t, tokens, "len")
	require.NotContains(t, tokens, "nums")
}

// numberedLines emits one "v = n" statement per number in [from, to).
func numberedLines(from, to int) string {
	var b strings.Builder
	for n := from; n < to; n++ {
		fmt.Fprintf(&b, "v = %d\n", n)
	}
	return b.String()
}

func TestDetectRequiresBothCoveragesAboveThreshold(t *testing.T) {
	short := numberedLines(0, 40)
	long := short + numberedLines(1000, 1200)
	subs := []models.Submission{
		sub("1", "alice", 1, 4, "mystery-lang", short),
		sub("2", "bob", 2, 4, "mystery-lang", long),
	}
	group := models.SubmissionGroup{
		Key:         models.GroupKey{QuestionID: 4, Language: "mystery-lang"},
		Submissions: pointers(subs),
	}

	opts := DefaultDetectOptions()
	opts.Threshold = 0
	matches := Detect(group.Submissions, "mystery-lang", opts)
	require.Len(t, matches, 2)

	shortCov := matches[0].CandidateCoverage
	longCov := matches[0].ReferenceCoverage
	require.Equal(t, 0, matches[0].Candidate)
	require.InDelta(t, 1.0, shortCov, 1e-9)
	require.Less(t, longCov, DefaultDetectOptions().Threshold)
	require.Equal(t, SimilarityMatch{Candidate: 1, Reference: 0, CandidateCoverage: longCov, ReferenceCoverage: shortCov}, matches[1])

	records := Aggregate(matches, group)
	require.Len(t, records, 2)
	for _, r := range records {
		require.InDelta(t, 100*longCov, r.ConfidenceScore, 1e-9)
	}

	require.Empty(t, Detect(group.Submissions, "mystery-lang", DefaultDetectOptions()))
}

func TestGenericTokensForUnknownLanguage(t *testing.T) {
	code := "x = foo(1) // c\n/* b */ s = \"a\\\"b\" # t\n y += 2"
	want := []string{"V", "=", "F", "(", "1", ")", "V", "=", "S", "V", "+=", "2"}
	require.Equal(t, want, genericTokens(code))
	require.Equal(t, want, Tokenize(code, "mystery-lang"))
	require.Empty(t, genericTokens("// only a comment"))
}

func TestWinnowKeepsRightmostMinimum(t *testing.T) {
	got := winnow([]uint64{5, 1, 1, 3, 2, 9}, 3)
	require.Equal(t, []Fingerprint{{Hash: 1, Position: 2}, {Hash: 2, Position: 4}}, got)

	require.Nil(t, winnow(nil, 3))
	require.Len(t, winnow([]uint64{4, 2}, 6), 1)
}

func TestFingerprintsNeedAtLeastKTokens(t *testing.T) {
	require.Empty(t, Fingerprints([]string{"a", "b"}, 3, 2))
	require.NotEmpty(t, Fingerprints([]string{"a", "b", "c"}, 3, 2))
}

func TestBuildGIICountsSharedHashes(t *testing.T) {
	sets := []map[uint64]struct{}{
		{1: {}, 2: {}, 3: {}},
		{2: {}, 3: {}, 4: {}},
		nil,
		{9: {}},
	}
	gii := BuildGII(sets)
	require.Len(t, gii, 2)

	shared := gii.SharedCounts()
	require.Equal(t, map[Pair]int{{A: 0, B: 1}: 2}, shared)
	require.Equal(t, []Pair{{A: 0, B: 1}}, SortedPairs(shared))
}

func TestDetectIdenticalPairIsFullConfidenceBothWays(t *testing.T) {
	subs := []models.Submission{
		sub("100", "alice", 1, 7, "python3", twoSum),
		sub("200", "bob", 5, 7, "python3", twoSumRenamed),
		sub("300", "carol", 9, 7, "python3", unrelated),
	}
	group := models.SubmissionGroup{
		Key:         models.GroupKey{QuestionID: 7, Language: "python3"},
		Submissions: pointers(subs),
	}

	opts := DefaultDetectOptions()
	opts.MinTokens = 10
	matches := Detect(group.Submissions, "python3", opts)
	require.Equal(t, []SimilarityMatch{
		{Candidate: 0, Reference: 1, CandidateCoverage: 1, ReferenceCoverage: 1},
		{Candidate: 1, Reference: 0, CandidateCoverage: 1, ReferenceCoverage: 1},
	}, matches)

	records := Aggregate(matches, group)
	require.Len(t, records, 2)
	require.Equal(t, "alice", records[0].Plagiarist)
	require.Equal(t, "bob", records[0].PlagiarizedFrom)
	require.Equal(t, "bob-slug", records[1].PlagiaristUserID)
	require.Equal(t, "100", records[1].PlagiarizedSubmissionID)
	for _, r := range records {
		require.InDelta(t, 100.0, r.ConfidenceScore, 1e-9)
		require.Equal(t, 7, r.QuestionID)
		require.Equal(t, "python3", r.Language)
		require.NotEqual(t, r.PlagiaristUserID, r.PlagiarizedFromUserID)
	}
}

func TestDetectSkipsSmallGroupsAndShortCode(t *testing.T) {
	single := []models.Submission{sub("1", "a", 1, 1, "python3", twoSum)}
	require.Empty(t, Detect(pointers(single), "python3", DefaultDetectOptions()))

	short := []models.Submission{
		sub("1", "a", 1, 1, "python3", "print(1)"),
		sub("2", "b", 2, 1, "python3", "print(1)"),
	}
	require.Empty(t, Detect(pointers(short), "python3", DefaultDetectOptions()))

	empty := []models.Submission{sub("1", "a", 1, 1, "go", ""), sub("2", "b", 2, 1, "go", "")}
	require.Empty(t, Detect(pointers(empty), "go", DefaultDetectOptions()))
}

func TestDetectThresholdIsStrict(t *testing.T) {
	subs := []models.Submission{
		sub("1", "a", 1, 1, "python3", twoSum),
		sub("2", "b", 2, 1, "python3", twoSum),
	}
	opts := DefaultDetectOptions()
	opts.MinTokens = 1
	opts.Threshold = 1
	require.Empty(t, Detect(pointers(subs), "python3", opts))
}

func TestAggregateDropsSelfMatches(t *testing.T) {
	subs := []models.Submission{
		sub("1", "alice", 1, 3, "cpp", "a"),
		sub("2", "alice", 1, 3, "cpp", "b"),
		sub("1", "alice", 1, 3, "cpp", "a"),
		sub("4", "dave", 4, 3, "cpp", "d"),
	}
	group := models.SubmissionGroup{Key: models.GroupKey{QuestionID: 3, Language: "cpp"}, Submissions: pointers(subs)}

	matches := []SimilarityMatch{
		{Candidate: 0, Reference: 1, CandidateCoverage: 0.9, ReferenceCoverage: 0.8},
		{Candidate: 0, Reference: 2, CandidateCoverage: 1, ReferenceCoverage: 1},
		{Candidate: 3, Reference: 0, CandidateCoverage: 0.5, ReferenceCoverage: 0.4},
		{Candidate: 3, Reference: 42, CandidateCoverage: 1, ReferenceCoverage: 1},
	}
	records := Aggregate(matches, group)
	require.Len(t, records, 1)
	require.Equal(t, "dave", records[0].Plagiarist)
	require.InDelta(t, 40.0, records[0].ConfidenceScore, 1e-9)
}

func TestRankRecordsOrdersByConfidenceThenRank(t *testing.T) {
	records := []models.PlagiarismRecord{
		{Plagiarist: "c", ConfidenceScore: 50, PlagiaristRank: 1},
		{Plagiarist: "b", ConfidenceScore: 90, PlagiaristRank: 7},
		{Plagiarist: "a", ConfidenceScore: 90, PlagiaristRank: 3},
	}
	RankRecords(records)
	require.Equal(t, "a", records[0].Plagiarist)
	require.Equal(t, "b", records[1].Plagiarist)
	require.Equal(t, "c", records[2].Plagiarist)
}

func TestComputePlagiarismRunsAllGroups(t *testing.T) {
	var subs []models.Submission
	for q := 1; q <= 3; q++ {
		subs = append(subs,
			sub(fmt.Sprintf("%d-a", q), fmt.Sprintf("a%d", q), 1, q, "python3", twoSum),
			sub(fmt.Sprintf("%d-b", q), fmt.Sprintf("b%d", q), 2, q, "python3", twoSumRenamed),
		)
	}
	subs = append(subs, sub("lonely", "z", 3, 1, "java", "class A {}"))

	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	opts := DefaultDetectOptions()
	opts.MinTokens = 10
	records, stats, err := ComputePlagiarism(context.Background(), Group(subs), opts, pool)
	require.NoError(t, err)
	require.Len(t, records, 6)
	require.Equal(t, DetectionStats{Groups: 4, Compared: 3, Matches: 6, Records: 6}, stats)
	require.Equal(t, 1, records[0].QuestionID)
	require.Equal(t, 3, records[5].QuestionID)
}

func TestComputePlagiarismStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(context.Background(), 1)
	defer pool.Close()

	subs := []models.Submission{
		sub("1", "a", 1, 1, "python3", twoSum),
		sub("2", "b", 2, 1, "python3", twoSum),
	}
	_, _, err := ComputePlagiarism(ctx, Group(subs), DefaultDetectOptions(), pool)
	require.ErrorIs(t, err, context.Canceled)
}

type countingJob struct {
	count *atomic.Int32
}

func (j countingJob) Execute(ctx context.Context) error {
	j.count.Add(1)
	return nil
}

func TestWorkerPoolDrainsQueueOnClose(t *testing.T) {
	var count atomic.Int32
	pool := NewWorkerPool(context.Background(), 3)
	require.Equal(t, 3, pool.Size())

	for range 50 {
		require.NoError(t, pool.Submit(countingJob{count: &count}))
	}
	pool.Close()
	require.Equal(t, int32(50), count.Load())

	require.ErrorIs(t, pool.Submit(countingJob{count: &count}), ErrPoolClosed)
	pool.Close()
}
