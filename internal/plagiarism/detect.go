package plagiarism

import (
	"github.com/RishiKendai/contestguard/internal/models"
)

type DetectOptions struct {
	// Threshold is exceeded by both coverages of a reported pair.
	Threshold  float64
	MinTokens  int
	KGramSize  int
	WindowSize int
}

func DefaultDetectOptions() DetectOptions {
	return DetectOptions{
		Threshold:  0.33,
		MinTokens:  30,
		KGramSize:  25,
		WindowSize: 6,
	}
}

// SimilarityMatch reports that Candidate shares code with Reference. Both are
// indices into the group passed to Detect.
type SimilarityMatch struct {
	Candidate         int
	Reference         int
	CandidateCoverage float64
	ReferenceCoverage float64
}

// Detect compares every pair of submissions of one group. A pair whose
// coverages both exceed the threshold yields a match in each direction.
// Submissions with fewer than MinTokens tokens or no fingerprints are ignored.
func Detect(subs []*models.Submission, language string, opts DetectOptions) []SimilarityMatch {
	if len(subs) < 2 {
		return nil
	}

	sets := make([]map[uint64]struct{}, len(subs))
	for i, sub := range subs {
		tokens := Tokenize(sub.Code, language)
		if len(tokens) < opts.MinTokens {
			continue
		}
		fps := Fingerprints(tokens, opts.KGramSize, opts.WindowSize)
		if len(fps) == 0 {
			continue
		}
		sets[i] = hashSet(fps)
	}

	shared := BuildGII(sets).SharedCounts()

	var matches []SimilarityMatch
	for _, p := range SortedPairs(shared) {
		n := float64(shared[p])
		covA := n / float64(len(sets[p.A]))
		covB := n / float64(len(sets[p.B]))
		if covA <= opts.Threshold || covB <= opts.Threshold {
			continue
		}
		matches = append(matches,
			SimilarityMatch{Candidate: p.A, Reference: p.B, CandidateCoverage: covA, ReferenceCoverage: covB},
			SimilarityMatch{Candidate: p.B, Reference: p.A, CandidateCoverage: covB, ReferenceCoverage: covA},
		)
	}
	return matches
}
