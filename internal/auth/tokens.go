package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	tokenKeyPrefix = "auth:token:"
	userKeyPrefix  = "auth:user:"
)

// TokenStore keeps one active bearer token per user in Redis.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

func tokenKey(token string) string { return tokenKeyPrefix + token }

func userKey(userID int64) string { return userKeyPrefix + strconv.FormatInt(userID, 10) }

// Issue stores token for userID and revokes the user's previous token.
func (s *TokenStore) Issue(ctx context.Context, userID int64, token string) (time.Time, error) {
	previous, err := s.client.Get(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("read current token: %w", err)
	}
	pipe := s.client.TxPipeline()
	if previous != "" {
		pipe.Del(ctx, tokenKey(previous))
	}
	pipe.Set(ctx, tokenKey(token), userID, s.ttl)
	pipe.Set(ctx, userKey(userID), token, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, fmt.Errorf("store token: %w", err)
	}
	return time.Now().Add(s.ttl), nil
}

// Resolve returns the user bound to token.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	id, err := s.client.Get(ctx, tokenKey(token)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, shared.ErrUnauthorized
	}
	if err != nil {
		return 0, fmt.Errorf("resolve token: %w", err)
	}
	return id, nil
}

// Revoke deletes token and, when it is still the user's current one, the
// user's pointer to it.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	id, err := s.Resolve(ctx, token)
	if errors.Is(err, shared.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tokenKey(token))
	current, err := s.client.Get(ctx, userKey(id)).Result()
	if err == nil && current == token {
		pipe.Del(ctx, userKey(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// RevokeUser ends whatever session userID holds.
func (s *TokenStore) RevokeUser(ctx context.Context, userID int64) error {
	token, err := s.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, tokenKey(token), userKey(userID)).Err()
}
