package plagiarism

import (
	"cmp"
	"slices"
	"time"

	"github.com/RishiKendai/contestguard/internal/models"
)

// Aggregate turns the matches of one group into plagiarism records. Matches
// between the same submission or the same user are dropped.
func Aggregate(matches []SimilarityMatch, group models.SubmissionGroup) []models.PlagiarismRecord {
	now := time.Now().UTC()
	records := make([]models.PlagiarismRecord, 0, len(matches))

	for _, m := range matches {
		if m.Candidate < 0 || m.Candidate >= len(group.Submissions) ||
			m.Reference < 0 || m.Reference >= len(group.Submissions) {
			continue
		}
		candidate := group.Submissions[m.Candidate]
		reference := group.Submissions[m.Reference]
		if candidate.SubmissionID == reference.SubmissionID || candidate.UserSlug == reference.UserSlug {
			continue
		}

		records = append(records, models.PlagiarismRecord{
			Plagiarist:              candidate.Username,
			PlagiaristUserID:        candidate.UserSlug,
			PlagiarizedFrom:         reference.Username,
			PlagiarizedFromUserID:   reference.UserSlug,
			PlagiaristSubmissionID:  candidate.SubmissionID,
			PlagiarizedSubmissionID: reference.SubmissionID,
			PlagiaristRank:          candidate.ContestRank,
			PlagiarizedRank:         reference.ContestRank,
			ConfidenceScore:         100 * min(m.CandidateCoverage, m.ReferenceCoverage),
			Language:                group.Key.Language,
			QuestionID:              group.Key.QuestionID,
			CreatedAt:               now,
		})
	}
	return records
}

// RankRecords sorts records by confidence, highest first, then by the
// plagiarist's contest rank.
func RankRecords(records []models.PlagiarismRecord) {
	slices.SortStableFunc(records, func(a, b models.PlagiarismRecord) int {
		return cmp.Or(
			cmp.Compare(b.ConfidenceScore, a.ConfidenceScore),
			cmp.Compare(a.PlagiaristRank, b.PlagiaristRank),
		)
	})
}
