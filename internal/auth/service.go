package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService   *JWTService
	RefreshStore RefreshTokenStore
	Logger       zerolog.Logger
}

// Service issues and rotates rider sessions. Refresh tokens are stored
// only as SHA-256 digests, so a leaked store cannot be replayed.
type Service struct {
	jwt    *JWTService
	store  RefreshTokenStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		jwt:    cfg.JWTService,
		store:  cfg.RefreshStore,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// SignInAnonymously mints a new rider identity and its first session.
func (s *Service) SignInAnonymously(ctx context.Context) (*TokenResponse, error) {
	user := &User{ID: newUserID(), CreatedAt: s.now().UTC()}

	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("anonymous sign-in")
	return resp, nil
}

// Refresh trades a refresh token for a new pair. The presented token is
// consumed whether or not issuing the new pair succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	userID, err := s.store.Consume(ctx, digest(refreshToken))
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, &User{ID: userID})
}

// ValidateAccessToken returns the rider an access token was issued to.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// Revoke ends the session behind one refresh token. Unknown tokens are
// not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	return s.store.Revoke(ctx, digest(refreshToken))
}

// RevokeAll ends every session of a rider. Access tokens already issued
// stay valid until they expire.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if err := s.store.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("all sessions revoked")
	return nil
}

func (s *Service) issue(ctx context.Context, user *User) (*TokenResponse, error) {
	access, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, digest(refresh), user.ID, RefreshTokenExpiry); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(expiresAt.Sub(s.now()).Seconds()),
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// digest is the store key for a refresh token.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newUserID() string {
	return "usr_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:22]
}
