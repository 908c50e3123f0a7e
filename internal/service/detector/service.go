// Package detector implements the application use cases: profile
// reconciliation, classification and recording, feedback, and statistics.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"detectorgo/internal/identity"
	"detectorgo/internal/models"
)

var (
	ErrEmptyInput         = errors.New("input text is empty")
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrProfileMissing     = errors.New("user profile could not be created or retrieved")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrProfileCreate      = errors.New("failed to create user profile")
)

type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, u models.User) error
	CreateIfAbsent(ctx context.Context, u models.User) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	List(ctx context.Context) ([]models.User, error)
}

type PredictionStore interface {
	Create(ctx context.Context, p models.Prediction) error
	Exists(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Prediction, error)
	ListAll(ctx context.Context) ([]models.PredictionRecord, error)
	ListOutputs(ctx context.Context) ([]models.Prediction, error)
	Count(ctx context.Context) (int, error)
}

type FeedbackStore interface {
	Create(ctx context.Context, f models.Feedback) error
	ListByPredictions(ctx context.Context, predictionIDs []string) ([]models.Feedback, error)
	Count(ctx context.Context) (int, error)
	Tally(ctx context.Context) (total, correct int, err error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) (models.Label, error)
	ModelName() string
}

type TextExtractor interface {
	ExtractPDF(ctx context.Context, r io.Reader) (string, error)
}

// DocumentArchive stores uploaded source files. Optional.
type DocumentArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Deps lists the collaborators of a Service. Archive may be nil.
type Deps struct {
	Users       UserStore
	Predictions PredictionStore
	Feedbacks   FeedbackStore
	Identities  identity.Provider
	Classifier  Classifier
	Extractor   TextExtractor
	Archive     DocumentArchive
	Logger      zerolog.Logger
}

type Service struct {
	users       UserStore
	predictions PredictionStore
	feedbacks   FeedbackStore
	identities  identity.Provider
	classifier  Classifier
	extractor   TextExtractor
	archive     DocumentArchive
	log         zerolog.Logger
	now         func() time.Time
	newID       func() string
}

func NewService(d Deps) *Service {
	return &Service{
		users:       d.Users,
		predictions: d.Predictions,
		feedbacks:   d.Feedbacks,
		identities:  d.Identities,
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		archive:     d.Archive,
		log:         d.Logger.With().Str("component", "detector").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// EnsureProfile returns the profile for ident, creating it with the default
// role on first sight. The insert is conflict tolerant, so concurrent first
// requests for one identity end with a single row.
func (s *Service) EnsureProfile(ctx context.Context, ident identity.Identity) (*models.User, error) {
	if ident.ID == "" {
		return nil, errors.New("identity id is required")
	}
	user, err := s.users.GetByID(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	if user != nil {
		return user, nil
	}

	s.log.Info().Str("user_id", ident.ID).Msg("creating profile for new identity")
	err = s.users.CreateIfAbsent(ctx, models.User{
		ID:        ident.ID,
		Email:     ident.Email,
		Role:      models.RoleUser,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	user, err = s.users.GetByID(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	if user == nil {
		s.log.Error().Str("user_id", ident.ID).Msg("profile missing after insert")
		return nil, ErrProfileMissing
	}
	return user, nil
}

// Authenticate resolves a bearer token into the caller's profile.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	ident, err := s.identities.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.EnsureProfile(ctx, ident)
}
