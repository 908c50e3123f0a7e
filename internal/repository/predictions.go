package repository

import (
	"context"
	"database/sql"
	"fmt"

	"detectorgo/internal/models"
	"detectorgo/internal/storage"
)

type PredictionRepository struct {
	db *storage.DB
}

func NewPredictionRepository(db *storage.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionColumns = `p.id, p.user_id, p.model_name, p.input_data, p.output_data, p.source_document, p.created_at`

func scanPrediction(row rowScanner, extra ...any) (models.Prediction, error) {
	var (
		p      models.Prediction
		userID sql.NullString
		source sql.NullString
	)
	dest := append([]any{&p.ID, &userID, &p.ModelName, &p.InputData, &p.OutputData, &source, &p.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.Prediction{}, err
	}
	if userID.Valid {
		p.UserID = &userID.String
	}
	if source.Valid {
		p.SourceDocument = &source.String
	}
	return p, nil
}

func (r *PredictionRepository) Create(ctx context.Context, p models.Prediction) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind(
		`INSERT INTO predictions (id, user_id, model_name, input_data, output_data, source_document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.UserID, p.ModelName, p.InputData, p.OutputData, p.SourceDocument, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(
		`SELECT COUNT(*) FROM predictions WHERE id = ?`), id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup prediction: %w", err)
	}
	return n > 0, nil
}

// ListByUser returns the user's predictions, newest first.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID string) ([]models.Prediction, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(
		`SELECT `+predictionColumns+` FROM predictions p WHERE p.user_id = ? ORDER BY p.created_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAll returns every prediction with its owner's email, newest first.
func (r *PredictionRepository) ListAll(ctx context.Context) ([]models.PredictionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+predictionColumns+`, u.email FROM predictions p
		LEFT JOIN app_users u ON u.id = p.user_id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]models.PredictionRecord, 0)
	for rows.Next() {
		var email sql.NullString
		p, err := scanPrediction(rows, &email)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		rec := models.PredictionRecord{Prediction: p}
		if email.Valid {
			rec.UserEmail = &email.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListOutputs returns only the fields history aggregation needs, oldest first.
func (r *PredictionRepository) ListOutputs(ctx context.Context) ([]models.Prediction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, output_data, created_at FROM predictions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list prediction outputs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Prediction, 0)
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.OutputData, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction output: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PredictionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}
