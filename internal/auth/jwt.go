package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Riders sign in anonymously. Each sign-in mints a fresh user id and a
// token pair: an HS256 access token carrying the user id, and an opaque
// refresh token that is rotated on every use. Losing the refresh token
// loses the identity; reports already submitted keep the old id.

const (
	AccessTokenExpiry  = time.Hour
	RefreshTokenExpiry = 30 * 24 * time.Hour

	// RefreshTokenLength is the refresh token size in random bytes.
	RefreshTokenLength = 32

	// clockSkew tolerates phones whose clocks run slightly ahead or behind.
	clockSkew = 30 * time.Second
)

var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrAccessTokenExpired  = errors.New("access token has expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Claims are the access token claims. The subject is the rider id.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the rider the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

// JWTConfig configures access token signing.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// JWTService signs and verifies access tokens.
type JWTService struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

// NewJWTService creates a JWTService.
func NewJWTService(cfg JWTConfig) *JWTService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTService{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
			jwt.WithTimeFunc(now),
		),
	}
}

// GenerateAccessToken signs an access token for user and returns it with
// its expiry.
func (s *JWTService) GenerateAccessToken(user *User) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(AccessTokenExpiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   user.ID,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry.
// Expired tokens return ErrAccessTokenExpired so clients know to refresh;
// every other failure wraps ErrInvalidAccessToken.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	var claims Claims
	_, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return &claims, nil
}

// GenerateRefreshToken returns a random URL-safe refresh token.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
