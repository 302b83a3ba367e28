package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Data is what a session stores server-side. SelectedRepo is the "owner/repo"
// the user is working against; empty until chosen.
type Data struct {
	GitHubAccessToken string    `json:"github_access_token"`
	GitHubUsername    string    `json:"github_username"`
	GitHubAvatar      string    `json:"github_avatar,omitempty"`
	SelectedRepo      string    `json:"selected_repo,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ErrNotFound is returned for a missing or expired session.
var ErrNotFound = errors.New("session not found or expired")

// RedisStore keeps sessions in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "sess:"}, nil
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// Save stores a session under the token hash with the given lifetime.
func (s *RedisStore) Save(ctx context.Context, tokenHash string, data Data, ttl time.Duration) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup fetches a session; ErrNotFound when missing or expired.
func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Data, error) {
	payload, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("lookup session: %w", err)
	}
	var data Data
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return Data{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return data, nil
}

// SelectRepo updates the active repository without touching the session TTL.
func (s *RedisStore) SelectRepo(ctx context.Context, tokenHash, repoFullName string) error {
	data, err := s.Lookup(ctx, tokenHash)
	if err != nil {
		return err
	}
	data.SelectedRepo = repoFullName
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Revoke deletes a session.
func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
