package analytics

import "detectorgo/internal/models"

// View decodes a stored prediction for clients. Undecodable outputs become
// an empty object.
func View(p models.Prediction) models.PredictionView {
	out, ok := ParseOutput(p.OutputData)
	if !ok {
		out = map[string]any{}
	}
	return models.PredictionView{
		ID:        p.ID,
		UserID:    p.UserID,
		ModelName: p.ModelName,
		InputData: p.InputData,
		Output:    out,
		CreatedAt: p.CreatedAt,
	}
}

// JoinFeedback attaches feedback to predictions, keeping prediction order.
// When several feedback rows reference one prediction the first one in
// feedbacks wins. A nil feedbacks slice leaves every feedback field null.
func JoinFeedback(predictions []models.Prediction, feedbacks []models.Feedback) []models.PredictionWithFeedback {
	byPrediction := make(map[string]models.Feedback, len(feedbacks))
	for _, f := range feedbacks {
		if _, seen := byPrediction[f.PredictionID]; !seen {
			byPrediction[f.PredictionID] = f
		}
	}

	out := make([]models.PredictionWithFeedback, 0, len(predictions))
	for _, p := range predictions {
		item := models.PredictionWithFeedback{PredictionView: View(p)}
		if f, ok := byPrediction[p.ID]; ok {
			isCorrect := f.IsCorrect
			createdAt := f.CreatedAt
			comment := f.Content
			item.FeedbackIsCorrect = &isCorrect
			item.FeedbackCreatedAt = &createdAt
			item.FeedbackComment = &comment
		}
		out = append(out, item)
	}
	return out
}
