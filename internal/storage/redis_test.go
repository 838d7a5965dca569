package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// redisClient connects to TEST_REDIS_ADDR or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("redis integration test needs TEST_REDIS_ADDR")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func testNamespace() string {
	return fmt.Sprintf("quiz-test-%d", time.Now().UnixNano())
}

func TestRedisStore(t *testing.T) {
	rdb := redisClient(t)
	ns := testNamespace()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, ns+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})
	exerciseBlobStore(t, storage.NewRedisStore(rdb, ns, 0))
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	ns := testNamespace()
	s := storage.NewRedisStore(rdb, ns, time.Minute)
	if err := s.Put(ctx, "attempts/a1.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	t.Cleanup(func() { rdb.Del(context.Background(), ns+":attempts/a1.json") })

	ttl, err := rdb.TTL(ctx, ns+":attempts/a1.json").Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL = %s, want within (0, 1m]", ttl)
	}

	// keys of another namespace stay invisible
	other := storage.NewRedisStore(rdb, ns+"-other", 0)
	keys, err := other.List(ctx, "attempts/")
	if err != nil || len(keys) != 0 {
		t.Fatalf("List() in another namespace = %v, %v", keys, err)
	}
}
