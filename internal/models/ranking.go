package models

// RankingResponse is one page of the contest ranking API.
type RankingResponse struct {
	Questions   []RankingQuestion              `json:"questions"`
	Submissions []map[string]SubmissionSummary `json:"submissions"`
	TotalRank   []RankedUser                   `json:"total_rank"`
	UserNum     int                            `json:"user_num"`
}

// RankingQuestion is a question entry from the ranking API.
type RankingQuestion struct {
	ID         int    `json:"id"`
	QuestionID int    `json:"question_id"`
	Credit     int    `json:"credit"`
	Title      string `json:"title"`
	TitleSlug  string `json:"title_slug"`
}

// SubmissionSummary is the per-question stub in a ranking row. The code is not included.
type SubmissionSummary struct {
	ID           int64   `json:"id"`
	QuestionID   int     `json:"question_id"`
	SubmissionID int64   `json:"submission_id"`
	Date         int64   `json:"date"`
	FailCount    int     `json:"fail_count"`
	Lang         *string `json:"lang,omitempty"`
	DataRegion   *string `json:"data_region,omitempty"`
}

// RankedUser is a user row of the ranking table.
type RankedUser struct {
	Username    string  `json:"username"`
	UserSlug    string  `json:"user_slug"`
	Rank        int     `json:"rank"`
	Score       int     `json:"score"`
	FinishTime  int64   `json:"finish_time"`
	CountryCode *string `json:"country_code,omitempty"`
	DataRegion  *string `json:"data_region,omitempty"`
}

// SubmissionDetail is the submission API response carrying source code.
type SubmissionDetail struct {
	ID   *int64  `json:"id,omitempty"`
	Code *string `json:"code"`
	Lang *string `json:"lang"`
}
