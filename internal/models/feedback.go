package models

import "time"

// Feedback records whether a user judged a prediction correct.
type Feedback struct {
	ID           string    `json:"id"`
	PredictionID string    `json:"prediction_id"`
	UserID       string    `json:"user_id"`
	IsCorrect    bool      `json:"is_correct"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}
