package detector

import (
	"context"
	"fmt"
	"strings"

	"detectorgo/internal/models"
)

// Register creates an identity and its profile. If the profile cannot be
// written the identity is removed again so the email stays free.
func (s *Service) Register(ctx context.Context, email, password string, username *string) error {
	email = strings.TrimSpace(email)
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		if trimmed == "" {
			username = nil
		} else {
			username = &trimmed
			taken, err := s.users.UsernameExists(ctx, trimmed)
			if err != nil {
				return err
			}
			if taken {
				return ErrUsernameTaken
			}
		}
	}

	ident, err := s.identities.SignUp(ctx, email, password)
	if err != nil {
		return err
	}

	profileEmail := ident.Email
	if profileEmail == "" {
		profileEmail = email
	}
	err = s.users.Create(ctx, models.User{
		ID:        ident.ID,
		Username:  username,
		Email:     profileEmail,
		Role:      models.RoleUser,
		CreatedAt: s.now(),
	})
	if err != nil {
		if derr := s.identities.DeleteIdentity(ctx, ident.ID); derr != nil {
			s.log.Error().Err(derr).Str("user_id", ident.ID).Msg("rollback identity after failed profile insert")
		}
		return fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}
	s.log.Info().Str("user_id", ident.ID).Msg("user registered")
	return nil
}

// SignIn returns an access token and the caller's role. A caller without a
// profile yet is reported with the default role.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, models.Role, error) {
	sess, err := s.identities.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return "", "", err
	}
	role := models.RoleUser
	user, err := s.users.GetByID(ctx, sess.Identity.ID)
	if err != nil {
		return "", "", fmt.Errorf("lookup profile: %w", err)
	}
	if user != nil && user.Role != "" {
		role = user.Role
	}
	return sess.AccessToken, role, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.identities.SignOut(ctx, token)
}
