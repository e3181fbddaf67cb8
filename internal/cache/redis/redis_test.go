package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	goredis "github.com/go-redis/redis"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.NewCachingConfig()
	cfg.Redis.ClientType = "standard"
	cfg.Redis.Endpoint = mr.Addr()

	c := New(cfg)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisStoreAndRetrieve(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Store("k1", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := c.Retrieve("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != "hello" {
		t.Fatalf("expected hello, got %q", v)
	}
}

func TestRedisRetrieveMiss(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Retrieve("missing")
	if !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected ErrKNotFound, got %v", err)
	}
}

func TestRedisExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	_ = c.Store("k1", []byte("hello"), time.Second)
	mr.FastForward(2 * time.Second)
	if _, err := c.Retrieve("k1"); !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestRedisRemove(t *testing.T) {
	c, _ := newTestCache(t)
	_ = c.Store("k1", []byte("hello"), time.Minute)
	c.Remove("k1")
	if _, err := c.Retrieve("k1"); !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected removed key to miss, got %v", err)
	}
}
