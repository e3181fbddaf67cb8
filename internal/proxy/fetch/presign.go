package fetch

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// presignSafetyMargin is subtracted from a presigned URL's real expiry so
// it's never handed out to a caller close enough to the deadline to race
// the origin's clock skew tolerance.
const presignSafetyMargin = 5 * time.Minute

type presignEntry struct {
	url       string
	expiresAt time.Time
}

// PresignCache bounds the number of live presigned URLs held in memory,
// keyed by (source binding or base URL, path), per §4.4.
type PresignCache struct {
	mtx   sync.Mutex
	cache *lru.Cache
}

// NewPresignCache returns a PresignCache holding at most size entries.
func NewPresignCache(size int) *PresignCache {
	c, _ := lru.New(size)
	return &PresignCache{cache: c}
}

func presignCacheKey(sourceID, path string) string {
	return sourceID + "|" + path
}

// Get returns a cached presigned URL for (sourceID, path) if one exists
// and hasn't crossed its internal (margin-adjusted) expiry.
func (p *PresignCache) Get(sourceID, path string) (string, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	v, ok := p.cache.Get(presignCacheKey(sourceID, path))
	if !ok {
		return "", false
	}
	e := v.(presignEntry)
	if time.Now().After(e.expiresAt) {
		p.cache.Remove(presignCacheKey(sourceID, path))
		return "", false
	}
	return e.url, true
}

// Put stores a presigned URL, recording an internal expiry presignSafetyMargin
// before realExpiresAt.
func (p *PresignCache) Put(sourceID, path, url string, realExpiresAt time.Time) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	internalExpiry := realExpiresAt.Add(-presignSafetyMargin)
	p.cache.Add(presignCacheKey(sourceID, path), presignEntry{url: url, expiresAt: internalExpiry})
}

// GetOrSign returns a cached presigned URL, or calls sign to produce one
// and caches it for validFor (minus the safety margin).
func (p *PresignCache) GetOrSign(sourceID, path string, validFor time.Duration, sign func() (string, error)) (string, error) {
	if url, ok := p.Get(sourceID, path); ok {
		return url, nil
	}
	url, err := sign()
	if err != nil {
		return "", fmt.Errorf("fetch: presign: %w", err)
	}
	p.Put(sourceID, path, url, time.Now().Add(validFor))
	return url, nil
}
