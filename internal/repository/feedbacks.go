package repository

import (
	"context"
	"fmt"
	"strings"

	"detectorgo/internal/models"
	"detectorgo/internal/storage"
)

type FeedbackRepository struct {
	db *storage.DB
}

func NewFeedbackRepository(db *storage.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, f models.Feedback) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(
		`INSERT INTO feedbacks (id, prediction_id, user_id, is_correct, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		f.ID, f.PredictionID, f.UserID, f.IsCorrect, f.Content, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ListByPredictions returns feedback for the given predictions, oldest first.
func (r *FeedbackRepository) ListByPredictions(ctx context.Context, predictionIDs []string) ([]models.Feedback, error) {
	out := make([]models.Feedback, 0)
	if len(predictionIDs) == 0 {
		return out, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(predictionIDs)), ", ")
	args := make([]any, len(predictionIDs))
	for i, id := range predictionIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(
		`SELECT id, prediction_id, user_id, is_correct, content, created_at FROM feedbacks
		WHERE prediction_id IN (`+marks+`) ORDER BY created_at ASC`), args...)
	if err != nil {
		return nil, fmt.Errorf("list feedbacks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.PredictionID, &f.UserID, &f.IsCorrect, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FeedbackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedbacks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count feedbacks: %w", err)
	}
	return n, nil
}

// Tally returns the total and the correct feedback counts from one
// snapshot so correct never exceeds total.
func (r *FeedbackRepository) Tally(ctx context.Context) (total, correct int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_correct THEN 1 ELSE 0 END), 0)
		FROM feedbacks`,
	).Scan(&total, &correct)
	if err != nil {
		return 0, 0, fmt.Errorf("tally feedbacks: %w", err)
	}
	return total, correct, nil
}
