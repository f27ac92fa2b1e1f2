package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is a small read-side cache for the hot list endpoints. A nil *Cache
// is valid and disables caching, so callers never branch on configuration.
type Cache struct {
	client *redis.Client
}

const (
	leaderboardPrefix = "leaderboard:"
	recentMatchesKey  = "recent_matches"

	leaderboardTTL   = 30 * time.Second
	recentMatchesTTL = 10 * time.Second
)

// New connects to Redis at url. An empty url returns a disabled cache.
func New(url, password string) (*Cache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache key %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func leaderboardKey(difficulty string, limit int) string {
	return fmt.Sprintf("%s%s:%d", leaderboardPrefix, difficulty, limit)
}

// GetLeaderboard retrieves a cached leaderboard page. ok is false on miss.
func (c *Cache) GetLeaderboard(ctx context.Context, difficulty string, limit int, dest interface{}) (bool, error) {
	return c.get(ctx, leaderboardKey(difficulty, limit), dest)
}

func (c *Cache) SetLeaderboard(ctx context.Context, difficulty string, limit int, value interface{}) error {
	return c.set(ctx, leaderboardKey(difficulty, limit), value, leaderboardTTL)
}

// InvalidateLeaderboard drops every cached page for a difficulty.
func (c *Cache) InvalidateLeaderboard(ctx context.Context, difficulty string) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, leaderboardPrefix+difficulty+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan leaderboard keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func recentKey(limit int) string {
	return fmt.Sprintf("%s:%d", recentMatchesKey, limit)
}

func (c *Cache) GetRecentMatches(ctx context.Context, limit int, dest interface{}) (bool, error) {
	return c.get(ctx, recentKey(limit), dest)
}

func (c *Cache) SetRecentMatches(ctx context.Context, limit int, value interface{}) error {
	return c.set(ctx, recentKey(limit), value, recentMatchesTTL)
}

func (c *Cache) InvalidateRecentMatches(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, recentMatchesKey+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan recent match keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
