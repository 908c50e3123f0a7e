package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectorgo/internal/models"
)

func TestJoinFeedback(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	preds := []models.Prediction{
		{ID: "p2", OutputData: `[{"label":"Fake","score":0.9}]`, CreatedAt: now.Add(time.Hour)},
		{ID: "p1", OutputData: `[{'label': 'Real', 'score': 0.8}]`, CreatedAt: now},
		{ID: "p3", OutputData: `???`, CreatedAt: now.Add(-time.Hour)},
	}
	feedbacks := []models.Feedback{
		{ID: "f1", PredictionID: "p1", IsCorrect: false, Content: "", CreatedAt: now.Add(time.Minute)},
		{ID: "f2", PredictionID: "p2", IsCorrect: true, Content: "spot on", CreatedAt: now.Add(2 * time.Minute)},
		{ID: "f3", PredictionID: "p2", IsCorrect: false, Content: "changed my mind", CreatedAt: now.Add(3 * time.Minute)},
	}

	got := JoinFeedback(preds, feedbacks)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"p2", "p1", "p3"}, []string{got[0].ID, got[1].ID, got[2].ID})

	require.NotNil(t, got[0].FeedbackIsCorrect)
	assert.True(t, *got[0].FeedbackIsCorrect)
	assert.Equal(t, "spot on", *got[0].FeedbackComment)
	assert.Equal(t, "Fake", got[0].Output["label"])

	require.NotNil(t, got[1].FeedbackIsCorrect)
	assert.False(t, *got[1].FeedbackIsCorrect)
	require.NotNil(t, got[1].FeedbackComment)
	assert.Equal(t, "", *got[1].FeedbackComment)
	assert.Equal(t, now.Add(time.Minute), *got[1].FeedbackCreatedAt)
	assert.Equal(t, "Real", got[1].Output["label"])

	assert.Nil(t, got[2].FeedbackIsCorrect)
	assert.Nil(t, got[2].FeedbackCreatedAt)
	assert.Nil(t, got[2].FeedbackComment)
	assert.Empty(t, got[2].Output)
	assert.NotNil(t, got[2].Output)
}

func TestJoinFeedbackWithoutFeedback(t *testing.T) {
	preds := []models.Prediction{{ID: "a"}, {ID: "b"}}
	got := JoinFeedback(preds, nil)
	require.Len(t, got, 2)
	for _, item := range got {
		assert.Nil(t, item.FeedbackIsCorrect)
		assert.Nil(t, item.FeedbackComment)
	}
	assert.Empty(t, JoinFeedback(nil, nil))
}
