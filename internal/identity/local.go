package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"detectorgo/internal/redis"
	"detectorgo/internal/storage"
)

const (
	redisTokenPrefix       = "auth:token:"
	DefaultTokenTTL        = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

// Local keeps identities and issued tokens in the application database.
// Tokens are HS256 JWTs whose jti must still be present in auth_tokens, so
// sign-out revokes them before expiry. Redis, when configured, caches live
// token ids.
type Local struct {
	db       *storage.DB
	cache    *redis.Client
	secret   []byte
	tokenTTL time.Duration
	log      zerolog.Logger
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewLocal constructs a local provider. cache may be nil.
func NewLocal(db *storage.DB, cache *redis.Client, secret string, ttl time.Duration, log zerolog.Logger) *Local {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Local{
		db:       db,
		cache:    cache,
		secret:   []byte(secret),
		tokenTTL: ttl,
		log:      log.With().Str("component", "identity").Logger(),
	}
}

func (l *Local) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Identity{}, errors.New("email and password are required")
	}
	exists, err := l.emailExists(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	if exists {
		return Identity{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx, l.db.Dialect.Rebind(
		`INSERT INTO auth_identities (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		id, email, string(hash), time.Now().UTC(),
	)
	if err != nil {
		// Lost a race with a concurrent sign-up for the same email.
		if exists, _ := l.emailExists(ctx, email); exists {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return Identity{ID: id, Email: email}, nil
}

func (l *Local) emailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, l.db.Dialect.Rebind(
		`SELECT COUNT(*) FROM auth_identities WHERE email = ?`), email,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup identity: %w", err)
	}
	return n > 0, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var (
		id   string
		hash string
	)
	err := l.db.QueryRowContext(ctx, l.db.Dialect.Rebind(
		`SELECT id, password_hash FROM auth_identities WHERE email = ?`), email,
	).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup identity: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	ident := Identity{ID: id, Email: email}
	token, err := l.issueToken(ctx, ident)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, Identity: ident}, nil
}

func (l *Local) issueToken(ctx context.Context, ident Identity) (string, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(l.tokenTTL)
	jti := uuid.NewString()

	_, err := l.db.ExecContext(ctx, l.db.Dialect.Rebind(
		`INSERT INTO auth_tokens (token_id, identity_id, created_at, expires_at) VALUES (?, ?, ?, ?)`),
		jti, ident.ID, now, expiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("record token: %w", err)
	}

	claims := tokenClaims{
		Email: ident.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, redisTokenPrefix+jti, ident.ID, l.tokenTTL); err != nil {
			l.log.Warn().Err(err).Msg("cache token")
		}
	}
	return signed, nil
}

// parse verifies the signature only; expiry is checked against the stored
// row so expired tokens can be purged.
func (l *Local) parse(token string) (*tokenClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var claims tokenClaims
	tok, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	})
	if err != nil || !tok.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (l *Local) GetUser(ctx context.Context, token string) (Identity, error) {
	claims, err := l.parse(token)
	if err != nil {
		return Identity{}, err
	}
	ident := Identity{ID: claims.Subject, Email: claims.Email}
	expired := claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time)

	if l.cache != nil && !expired {
		if cached, err := l.cache.Get(ctx, redisTokenPrefix+claims.ID); err == nil && cached == claims.Subject {
			return ident, nil
		} else if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			l.log.Warn().Err(err).Msg("read token cache")
		}
	}

	var (
		identityID string
		expires    time.Time
	)
	err = l.db.QueryRowContext(ctx, l.db.Dialect.Rebind(
		`SELECT identity_id, expires_at FROM auth_tokens WHERE token_id = ?`), claims.ID,
	).Scan(&identityID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("lookup token: %w", err)
	}
	if expired || time.Now().UTC().After(expires) {
		_ = l.revoke(ctx, claims.ID)
		return Identity{}, ErrInvalidToken
	}
	if identityID != claims.Subject {
		return Identity{}, ErrInvalidToken
	}
	return ident, nil
}

func (l *Local) SignOut(ctx context.Context, token string) error {
	claims, err := l.parse(token)
	if err != nil {
		return err
	}
	return l.revoke(ctx, claims.ID)
}

func (l *Local) revoke(ctx context.Context, jti string) error {
	if _, err := l.db.ExecContext(ctx, l.db.Dialect.Rebind(
		`DELETE FROM auth_tokens WHERE token_id = ?`), jti); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if l.cache != nil {
		if err := l.cache.Del(ctx, redisTokenPrefix+jti); err != nil {
			l.log.Warn().Err(err).Msg("evict token cache")
		}
	}
	return nil
}

func (l *Local) DeleteIdentity(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := l.db.ExecContext(ctx, l.db.Dialect.Rebind(
		`DELETE FROM auth_identities WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// StartJanitor purges expired token rows every interval until ctx is done.
func (l *Local) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go l.cleanupLoop(ctx, interval)
}

func (l *Local) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.PurgeExpired(ctx)
			if err != nil {
				l.log.Error().Err(err).Msg("purge expired tokens")
				continue
			}
			if n > 0 {
				l.log.Debug().Int64("purged", n).Msg("expired tokens removed")
			}
		}
	}
}

// PurgeExpired deletes token rows past their expiry.
func (l *Local) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, l.db.Dialect.Rebind(
		`DELETE FROM auth_tokens WHERE expires_at <= ?`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return res.RowsAffected()
}
