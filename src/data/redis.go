package data

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	noncePrefix = "nonce:"

	// StreamBounties carries bounty lifecycle events for the notifier.
	StreamBounties = "moltwork.bounties"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

func SetNonce(ctx context.Context, rdb *redis.Client, addr, nonce string) error {
	return rdb.Set(ctx, noncePrefix+addr, nonce, 5*time.Minute).Err()
}

func GetNonce(ctx context.Context, rdb *redis.Client, addr string) (string, error) {
	return rdb.Get(ctx, noncePrefix+addr).Result()
}

func DelNonce(ctx context.Context, rdb *redis.Client, addr string) {
	rdb.Del(ctx, noncePrefix+addr)
}

// PublishBountyEvent appends a lifecycle event to the bounty stream. Callers
// fire it after commit; delivery is best effort.
func PublishBountyEvent(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	payload["event_id"] = uuid.NewString()
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamBounties,
		Values: payload,
	}).Result()
	return err
}
