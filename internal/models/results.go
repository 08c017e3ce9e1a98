package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Step string

const (
	StepIdle        Step = "idle"
	StepInitiated   Step = "initiated"
	StepCrawling    Step = "crawling"
	StepGrouping    Step = "grouping"
	StepDetecting   Step = "detecting"
	StepAggregating Step = "aggregating"
	StepDelivering  Step = "delivering"
	StepCompleted   Step = "completed"
	StepFailed      Step = "failed"
)

// PlagiarismRecord states that Plagiarist's submission contains code shared with PlagiarizedFrom's.
type PlagiarismRecord struct {
	Plagiarist              string    `bson:"plagiarist" json:"plagiarist"`
	PlagiaristUserID        string    `bson:"plagiarist_user_id" json:"plagiarist_user_id"`
	PlagiarizedFrom         string    `bson:"plagiarized_from" json:"plagiarized_from"`
	PlagiarizedFromUserID   string    `bson:"plagiarized_from_user_id" json:"plagiarized_from_user_id"`
	PlagiaristSubmissionID  string    `bson:"plagiarist_submission_id" json:"plagiarist_submission_id"`
	PlagiarizedSubmissionID string    `bson:"plagiarized_submission_id" json:"plagiarized_submission_id"`
	PlagiaristRank          int       `bson:"plagiarist_rank" json:"plagiarist_rank"`
	PlagiarizedRank         int       `bson:"plagiarized_rank" json:"plagiarized_rank"`
	ConfidenceScore         float64   `bson:"confidence_score" json:"confidence_score"` // 0..100
	Language                string    `bson:"language" json:"language"`
	QuestionID              int       `bson:"question_id" json:"question_id"`
	CreatedAt               time.Time `bson:"createdAt" json:"createdAt"`
}

// Contest is the metadata stored once per contest run.
type Contest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ContestName string             `bson:"contest_name" json:"contest_name"`
	ContestLink string             `bson:"contest_link" json:"contest_link"`
	ContestDate string             `bson:"contest_date" json:"contest_date"`
	Question3   string             `bson:"question_3" json:"question_3"`
	Question4   string             `bson:"question_4" json:"question_4"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// RunRequest represents a request to run the pipeline for a contest
type RunRequest struct {
	ContestSlug string `json:"contestSlug" binding:"required"`
}

// RunResponse represents the response from the run endpoint
type RunResponse struct {
	RunID       string `json:"runId"`
	Step        Step   `json:"step"`
	ContestSlug string `json:"contestSlug"`
}

// RunStatusResponse reports the last recorded step of a contest run
type RunStatusResponse struct {
	ContestSlug string `json:"contestSlug"`
	Step        Step   `json:"step"`
}
