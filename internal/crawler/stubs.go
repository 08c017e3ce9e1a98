package crawler

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/RishiKendai/contestguard/internal/models"
)

// SubmissionStub is a (user, question submission) pair taken from a ranking
// page, before the code is fetched.
type SubmissionStub struct {
	User         models.RankedUser
	QuestionID   int
	SubmissionID string
	Language     string
	Region       string
}

// StubFilter restricts the stubs yielded for a page.
type StubFilter struct {
	Targets        map[int]bool
	ExcludedRegion string
	// OnExcluded, when set, is called for every target stub dropped by region.
	OnExcluded func(SubmissionStub)
}

// Stubs lazily walks a ranking page, pairing each submissions row with its
// total_rank user. Question ids within a row are visited in ascending order.
func Stubs(page *models.RankingResponse, filter StubFilter) iter.Seq[SubmissionStub] {
	return func(yield func(SubmissionStub) bool) {
		rows := min(len(page.Submissions), len(page.TotalRank))
		for i := range rows {
			user := page.TotalRank[i]
			row := page.Submissions[i]

			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			slices.SortFunc(keys, func(a, b string) int {
				ai, _ := strconv.Atoi(a)
				bi, _ := strconv.Atoi(b)
				return ai - bi
			})

			for _, key := range keys {
				questionID, err := strconv.Atoi(key)
				if err != nil || !filter.Targets[questionID] {
					continue
				}
				summary := row[key]
				if summary.SubmissionID == 0 {
					continue
				}

				stub := SubmissionStub{
					User:         user,
					QuestionID:   questionID,
					SubmissionID: strconv.FormatInt(summary.SubmissionID, 10),
					Language:     deref(summary.Lang),
					Region:       deref(summary.DataRegion),
				}

				if filter.ExcludedRegion != "" && strings.EqualFold(stub.Region, filter.ExcludedRegion) {
					if filter.OnExcluded != nil {
						filter.OnExcluded(stub)
					}
					continue
				}

				if !yield(stub) {
					return
				}
			}
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
