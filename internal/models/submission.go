package models

// Submission is one accepted contest submission together with its source code.
// Values are created by the crawler and never mutated afterwards.
type Submission struct {
	Username     string `bson:"username" json:"username"`
	UserSlug     string `bson:"userslug" json:"userslug"`
	ContestRank  int    `bson:"contest_rank" json:"contest_rank"`
	QuestionID   int    `bson:"question_id" json:"question_id"`
	Language     string `bson:"language" json:"language"`
	Code         string `bson:"code" json:"code"`
	SubmissionID string `bson:"submission_id" json:"submission_id"`
}

// GroupKey identifies the unit of comparison: one question in one language.
type GroupKey struct {
	QuestionID int
	Language   string
}

// SubmissionGroup holds references to the submissions sharing a GroupKey, in input order.
type SubmissionGroup struct {
	Key         GroupKey
	Submissions []*Submission
}

// QuestionRef describes a contest question as listed by the ranking API.
type QuestionRef struct {
	ID              int    `json:"id"`
	QuestionID      int    `json:"question_id"`
	Title           string `json:"title"`
	TitleSlug       string `json:"title_slug"`
	NumberInContest int    `json:"number_in_contest"`
}
