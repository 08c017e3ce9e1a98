package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/contestguard/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const contestsCollection = "contests"

var ErrContestNotFound = errors.New("contest not found")

type ContestsRepository struct {
	mongoRepo *MongoRepository
}

func NewContestsRepository(mongoRepo *MongoRepository) *ContestsRepository {
	return &ContestsRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *ContestsRepository) InsertContest(ctx context.Context, contest *models.Contest) error {
	if contest.CreatedAt.IsZero() {
		contest.CreatedAt = time.Now().UTC()
	}

	id, err := r.mongoRepo.InsertOne(ctx, contestsCollection, contest)
	if err != nil {
		return fmt.Errorf("failed to insert contest: %w", err)
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		contest.ID = oid
	}

	return nil
}

// ListContests returns contests, newest first.
func (r *ContestsRepository) ListContests(ctx context.Context) ([]models.Contest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.mongoRepo.FindMany(ctx, contestsCollection, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find contests: %w", err)
	}
	defer cursor.Close(ctx)

	contests := []models.Contest{}
	if err := cursor.All(ctx, &contests); err != nil {
		return nil, fmt.Errorf("failed to decode contests: %w", err)
	}

	return contests, nil
}

func (r *ContestsRepository) GetContestByID(ctx context.Context, id string) (*models.Contest, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid contest id %q: %w", id, ErrContestNotFound)
	}

	var contest models.Contest
	err = r.mongoRepo.FindOne(ctx, contestsCollection, bson.M{"_id": oid}).Decode(&contest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrContestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contest: %w", err)
	}

	return &contest, nil
}
