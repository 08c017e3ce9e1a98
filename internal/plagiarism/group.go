package plagiarism

import (
	"cmp"
	"slices"

	"github.com/RishiKendai/contestguard/internal/models"
)

// Group partitions submissions by question and language. Each group keeps
// input order and points into subs.
func Group(subs []models.Submission) map[models.GroupKey][]*models.Submission {
	groups := make(map[models.GroupKey][]*models.Submission)
	for i := range subs {
		key := models.GroupKey{QuestionID: subs[i].QuestionID, Language: subs[i].Language}
		groups[key] = append(groups[key], &subs[i])
	}
	return groups
}

// SortedKeys returns the group keys ordered by question id, then language.
func SortedKeys(groups map[models.GroupKey][]*models.Submission) []models.GroupKey {
	keys := make([]models.GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b models.GroupKey) int {
		return cmp.Or(cmp.Compare(a.QuestionID, b.QuestionID), cmp.Compare(a.Language, b.Language))
	})
	return keys
}
