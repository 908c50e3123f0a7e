package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"detectorgo/internal/analytics"
	"detectorgo/internal/models"
	"detectorgo/internal/textnorm"
)

// PredictionResult is what a caller gets back from a classification.
type PredictionResult struct {
	ID     string         `json:"id"`
	Labels []models.Label `json:"prediction"`
}

// Predict normalizes text, classifies it and records the outcome.
func (s *Service) Predict(ctx context.Context, userID, text string) (*PredictionResult, error) {
	return s.classifyAndRecord(ctx, userID, text, nil)
}

// PredictDocument extracts text from a PDF upload and classifies it. The
// uploaded file is archived when an archive is configured; archive
// failures only log.
func (s *Service) PredictDocument(ctx context.Context, userID, filename string, data []byte) (*PredictionResult, error) {
	text, err := s.extractor.ExtractPDF(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var source *string
	if s.archive != nil {
		key := path.Join("uploads", userID, s.newID()+".pdf")
		if err := s.archive.Put(ctx, key, data, "application/pdf"); err != nil {
			s.log.Warn().Err(err).Str("file", filename).Msg("archive uploaded document")
		} else {
			source = &key
		}
	}
	return s.classifyAndRecord(ctx, userID, text, source)
}

func (s *Service) classifyAndRecord(ctx context.Context, userID, text string, source *string) (*PredictionResult, error) {
	cleaned := textnorm.Normalize(text)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}

	label, err := s.classifier.Classify(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("classify text: %w", err)
	}
	labels := []models.Label{label}
	output, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("encode prediction: %w", err)
	}

	owner := userID
	rec := models.Prediction{
		ID:             s.newID(),
		UserID:         &owner,
		ModelName:      s.classifier.ModelName(),
		InputData:      cleaned,
		OutputData:     string(output),
		SourceDocument: source,
		CreatedAt:      s.now(),
	}
	if err := s.predictions.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug().Str("prediction_id", rec.ID).Str("label", label.Label).Msg("prediction recorded")
	return &PredictionResult{ID: rec.ID, Labels: labels}, nil
}

// ListUserPredictions returns the user's predictions, newest first, merged
// with their feedback. A failed feedback lookup leaves feedback fields null.
func (s *Service) ListUserPredictions(ctx context.Context, userID string) ([]models.PredictionWithFeedback, error) {
	preds, err := s.predictions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return []models.PredictionWithFeedback{}, nil
	}

	ids := make([]string, len(preds))
	for i, p := range preds {
		ids[i] = p.ID
	}
	feedbacks, err := s.feedbacks.ListByPredictions(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("feedback lookup failed, returning predictions without feedback")
		feedbacks = nil
	}
	return analytics.JoinFeedback(preds, feedbacks), nil
}

// SubmitFeedback records a correctness judgement for an existing prediction.
func (s *Service) SubmitFeedback(ctx context.Context, userID, predictionID string, isCorrect bool, comment *string) (*models.Feedback, error) {
	predictionID = strings.TrimSpace(predictionID)
	exists, err := s.predictions.Exists(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPredictionNotFound
	}

	content := ""
	if comment != nil {
		content = *comment
	}
	fb := models.Feedback{
		ID:           s.newID(),
		PredictionID: predictionID,
		UserID:       userID,
		IsCorrect:    isCorrect,
		Content:      content,
		CreatedAt:    s.now(),
	}
	if err := s.feedbacks.Create(ctx, fb); err != nil {
		return nil, err
	}
	return &fb, nil
}
