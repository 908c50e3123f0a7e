package models

import "time"

// Label is a single classifier verdict.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Prediction is an immutable record of one classification request.
type Prediction struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id"`
	ModelName      string    `json:"model_name"`
	InputData      string    `json:"input_data"`
	OutputData     string    `json:"output_data"`
	SourceDocument *string   `json:"source_document,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PredictionView is a prediction as returned to clients, with the stored
// output decoded into its first label object.
type PredictionView struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	ModelName string         `json:"model_name"`
	InputData string         `json:"input_data"`
	Output    map[string]any `json:"output_data"`
	CreatedAt time.Time      `json:"created_at"`
}

// PredictionWithFeedback joins a prediction with the caller's feedback.
// The feedback fields are null when no feedback exists or it could not be
// loaded.
type PredictionWithFeedback struct {
	PredictionView
	FeedbackIsCorrect *bool      `json:"feedback_is_correct"`
	FeedbackCreatedAt *time.Time `json:"feedback_created_at"`
	FeedbackComment   *string    `json:"feedback_comment"`
}

type PredictionAdminView struct {
	PredictionView
	UserEmail *string `json:"user_email"`
}

// PredictionRecord pairs a stored prediction with its owner's email.
type PredictionRecord struct {
	Prediction
	UserEmail *string
}

// DailyLabelCount is one row of the per-day prediction history.
type DailyLabelCount struct {
	Date string `json:"date"`
	Real int    `json:"real"`
	Fake int    `json:"fake"`
}
