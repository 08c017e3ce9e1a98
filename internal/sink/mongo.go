package sink

import (
	"context"
	"fmt"

	mongoInfra "github.com/RishiKendai/contestguard/internal/infra/mongo"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/RishiKendai/contestguard/internal/repository"
)

// MongoSink writes records to one collection per question and contest
// metadata to the contests collection. It owns its client.
type MongoSink struct {
	client   *mongoInfra.Client
	results  *repository.ResultsRepository
	contests *repository.ContestsRepository
}

func NewMongoSink(ctx context.Context, uri, dbName string) (*MongoSink, error) {
	client, err := mongoInfra.NewClient(ctx, uri, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo sink: %w", err)
	}

	mongoRepo := repository.NewMongoRepository(client)
	return &MongoSink{
		client:   client,
		results:  repository.NewResultsRepository(mongoRepo),
		contests: repository.NewContestsRepository(mongoRepo),
	}, nil
}

func (s *MongoSink) SaveContest(ctx context.Context, contest *models.Contest) error {
	return s.contests.InsertContest(ctx, contest)
}

func (s *MongoSink) DeliverQuestion(ctx context.Context, questionID int, records []models.PlagiarismRecord) error {
	_, err := s.results.InsertRecords(ctx, questionID, records)
	return err
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
