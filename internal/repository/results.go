package repository

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/RishiKendai/contestguard/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordFilter narrows a question report.
type RecordFilter struct {
	MinConfidence float64
	// Search matches plagiarist or source username, case-insensitive.
	Search string
	Limit  int64
}

// ResultsRepository stores plagiarism records in one collection per question id.
type ResultsRepository struct {
	mongoRepo *MongoRepository
}

func NewResultsRepository(mongoRepo *MongoRepository) *ResultsRepository {
	return &ResultsRepository{
		mongoRepo: mongoRepo,
	}
}

// QuestionCollection names the collection holding the records of a question.
func QuestionCollection(questionID int) string {
	return strconv.Itoa(questionID)
}

func (r *ResultsRepository) InsertRecords(ctx context.Context, questionID int, records []models.PlagiarismRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	n, err := r.mongoRepo.InsertMany(ctx, QuestionCollection(questionID), docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return n, fmt.Errorf("failed to insert records for question %d: %w", questionID, err)
	}

	return n, nil
}

// FindByQuestion returns the records of a question ordered by confidence
// descending, then plagiarist rank.
func (r *ResultsRepository) FindByQuestion(ctx context.Context, questionID int, f RecordFilter) ([]models.PlagiarismRecord, error) {
	filter := recordQuery(f)
	opts := options.Find().SetSort(bson.D{
		{Key: "confidence_score", Value: -1},
		{Key: "plagiarist_rank", Value: 1},
	})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cursor, err := r.mongoRepo.FindMany(ctx, QuestionCollection(questionID), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.PlagiarismRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	return records, nil
}

func recordQuery(f RecordFilter) bson.M {
	filter := bson.M{}
	if f.MinConfidence > 0 {
		filter["confidence_score"] = bson.M{"$gte": f.MinConfidence}
	}
	if f.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"plagiarist": pattern},
			bson.M{"plagiarized_from": pattern},
		}
	}
	return filter
}
