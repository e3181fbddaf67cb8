package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
)

func newTestCache() *Cache {
	c := New(config.NewCachingConfig())
	_ = c.Connect()
	return c
}

func TestStoreAndRetrieve(t *testing.T) {
	c := newTestCache()
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

func TestRetrieveMiss(t *testing.T) {
	c := newTestCache()
	_, err := c.Retrieve("missing")
	if !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected ErrKNotFound, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache()
	_ = c.Store("k1", []byte("hello"), time.Nanosecond)
	time.Sleep(time.Millisecond)
	if _, err := c.Retrieve("k1"); !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected expired key to miss, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	c := newTestCache()
	_ = c.Store("k1", []byte("hello"), time.Minute)
	c.Remove("k1")
	if _, err := c.Retrieve("k1"); !errors.Is(err, cache.ErrKNotFound) {
		t.Fatalf("expected removed key to miss, got %v", err)
	}
}

func TestNoExpiry(t *testing.T) {
	c := newTestCache()
	_ = c.Store("k1", []byte("hello"), 0)
	if _, err := c.Retrieve("k1"); err != nil {
		t.Fatalf("expected a no-expiry entry to persist, got %v", err)
	}
}
