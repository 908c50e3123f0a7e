package detector

import (
	"context"

	"detectorgo/internal/analytics"
	"detectorgo/internal/models"
)

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *Service) ListPredictions(ctx context.Context) ([]models.PredictionAdminView, error) {
	records, err := s.predictions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PredictionAdminView, 0, len(records))
	for _, rec := range records {
		out = append(out, models.PredictionAdminView{
			PredictionView: analytics.View(rec.Prediction),
			UserEmail:      rec.UserEmail,
		})
	}
	return out, nil
}

func (s *Service) FeedbackCount(ctx context.Context) (int, error) {
	return s.feedbacks.Count(ctx)
}

func (s *Service) PredictionCount(ctx context.Context) (int, error) {
	return s.predictions.Count(ctx)
}

// Accuracy is the share of feedback marked correct, 0 without feedback.
func (s *Service) Accuracy(ctx context.Context) (float64, error) {
	total, correct, err := s.feedbacks.Tally(ctx)
	if err != nil {
		return 0, err
	}
	return analytics.Accuracy(correct, total), nil
}

func (s *Service) History(ctx context.Context) ([]models.DailyLabelCount, error) {
	records, err := s.predictions.ListOutputs(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.DailyHistory(records), nil
}
