package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore keeps issued refresh tokens.
type RefreshTokenStore interface {
	// Create stores a token for a user until its expiry.
	Create(ctx context.Context, token, userID string, ttl time.Duration) error

	// Consume removes a token and returns its user. Unknown, expired and
	// already consumed tokens return ErrInvalidRefreshToken.
	Consume(ctx context.Context, token string) (string, error)

	// Revoke removes a token. Unknown tokens are not an error.
	Revoke(ctx context.Context, token string) error

	// RevokeAllForUser removes every token of a user.
	RevokeAllForUser(ctx context.Context, userID string) error
}

func refreshTokenKey(token string) string {
	return "refresh_tokens:" + token
}

func userTokensKey(userID string) string {
	return "refresh_tokens:user:" + userID
}

// RedisRefreshTokenStore stores refresh tokens as expiring Redis keys. A
// per-user set indexes the tokens for RevokeAllForUser.
type RedisRefreshTokenStore struct {
	client *redis.Client
}

// NewRedisRefreshTokenStore creates a Redis-backed refresh token store.
func NewRedisRefreshTokenStore(client *redis.Client) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client}
}

// Create stores a refresh token.
func (s *RedisRefreshTokenStore) Create(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshTokenKey(token), userID, ttl)
		pipe.SAdd(ctx, userTokensKey(userID), token)
		pipe.Expire(ctx, userTokensKey(userID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes a refresh token.
func (s *RedisRefreshTokenStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, refreshTokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("consuming refresh token: %w", err)
	}
	s.client.SRem(ctx, userTokensKey(userID), token)
	return userID, nil
}

// Revoke deletes a refresh token.
func (s *RedisRefreshTokenStore) Revoke(ctx context.Context, token string) error {
	_, err := s.Consume(ctx, token)
	if err != nil && !errors.Is(err, ErrInvalidRefreshToken) {
		return err
	}
	return nil
}

// RevokeAllForUser deletes every refresh token of a user.
func (s *RedisRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	tokens, err := s.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("listing refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, refreshTokenKey(t))
	}
	keys = append(keys, userTokensKey(userID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

// InMemoryRefreshTokenStore is an in-memory RefreshTokenStore for local
// development and tests.
type InMemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

// NewInMemoryRefreshTokenStore creates a new in-memory refresh token store.
func NewInMemoryRefreshTokenStore() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{
		tokens: make(map[string]memoryToken),
		now:    time.Now,
	}
}

// Create stores a refresh token.
func (s *InMemoryRefreshTokenStore) Create(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryToken{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Consume removes a refresh token and returns its user.
func (s *InMemoryRefreshTokenStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	delete(s.tokens, token)
	if !s.now().Before(t.expiresAt) {
		return "", ErrInvalidRefreshToken
	}
	return t.userID, nil
}

// Revoke removes a refresh token.
func (s *InMemoryRefreshTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// RevokeAllForUser removes every token of a user.
func (s *InMemoryRefreshTokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, t := range s.tokens {
		if t.userID == userID {
			delete(s.tokens, token)
		}
	}
	return nil
}

var (
	_ RefreshTokenStore = (*RedisRefreshTokenStore)(nil)
	_ RefreshTokenStore = (*InMemoryRefreshTokenStore)(nil)
)
