package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"venuepos/backend/internal/domain"
)

const (
	statsKeyPrefix = "venuepos:stats:"
	changesChannel = "venuepos:register-changes"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisStatsCache struct {
	client *redis.Client
}

func NewRedisStatsCache(client *redis.Client) *RedisStatsCache {
	return &RedisStatsCache{client: client}
}

func (c *RedisStatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatsCache) Get(ctx context.Context, registerID string) (*domain.SessionStats, bool, error) {
	val, err := c.client.Get(ctx, statsKeyPrefix+registerID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats domain.SessionStats
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *domain.SessionStats, ttl time.Duration) error {
	if stats == nil || stats.RegisterID == "" {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKeyPrefix+stats.RegisterID, payload, ttl).Err()
}

func (c *RedisStatsCache) Delete(ctx context.Context, registerID string) error {
	return c.client.Del(ctx, statsKeyPrefix+registerID).Err()
}

// RedisNotifier carries change signals between server instances so every
// instance's aggregator recomputes when any terminal writes.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, registerID string) error {
	return n.client.Publish(ctx, changesChannel, registerID).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := n.client.Subscribe(ctx, changesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					log.Debug().Str("register_id", msg.Payload).Msg("change signal dropped, subscriber busy")
				}
			}
		}
	}()
	return out, nil
}
