package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisEntry struct {
	Name  string
	Count int
}

func TestRedisCacheUnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache[redisEntry](client, "wallet:", time.Minute)

	ctx := context.Background()
	c.Set(ctx, "k", redisEntry{Name: "x"})
	if _, found := c.Get(ctx, "k"); found {
		t.Error("unreachable redis must report a miss")
	}
	c.Delete(ctx, "k")
}

func TestNewRedisClientBadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "redis://localhost:notaport"); err == nil {
		t.Error("expected error for malformed url")
	}
}

// Runs against a real server when WALLET_TEST_REDIS_URL is set.
func TestRedisCacheIntegration(t *testing.T) {
	url := os.Getenv("WALLET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WALLET_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	prefix := "wallet-test:" + time.Now().Format("150405.000000") + ":"
	c := NewRedisCache[redisEntry](client, prefix, time.Minute)

	c.Set(ctx, "a", redisEntry{Name: "savings", Count: 3})
	got, found := c.Get(ctx, "a")
	if !found || got.Name != "savings" || got.Count != 3 {
		t.Fatalf("Get(a) = %+v, %v", got, found)
	}
	c.Delete(ctx, "a")
	if _, found := c.Get(ctx, "a"); found {
		t.Error("a should be deleted")
	}
}
