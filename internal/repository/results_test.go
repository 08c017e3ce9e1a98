package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestQuestionCollection(t *testing.T) {
	require.Equal(t, "3254", QuestionCollection(3254))
}

func TestRecordQuery(t *testing.T) {
	require.Empty(t, recordQuery(RecordFilter{}))

	q := recordQuery(RecordFilter{MinConfidence: 80, Search: "a.b"})
	require.Equal(t, bson.M{"$gte": 80.0}, q["confidence_score"])

	pattern := bson.M{"$regex": `a\.b`, "$options": "i"}
	require.Equal(t, bson.A{
		bson.M{"plagiarist": pattern},
		bson.M{"plagiarized_from": pattern},
	}, q["$or"])
}
