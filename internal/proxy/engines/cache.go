/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package engines

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/chunkstore"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/model"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/metrics"
	"github.com/cdnforge/edgevideo/internal/util/reqctx"
)

// Producer obtains a fresh response when neither cache tier has anything
// usable, e.g. a call into the transformation dispatcher (C5).
type Producer func() (*ProducerResult, error)

// ProducerResult is what a Producer returns: bytes plus enough metadata to
// both serve the response and, if cacheable, write it back.
type ProducerResult struct {
	Body        []byte
	Status      int
	ContentType string
	Metadata    model.ArtifactMetadata

	// ExtraHeaders carries response headers a producer wants set on the
	// client response but that must never themselves be cached (e.g. the
	// dispatcher's X-Pattern-Fallback-* / X-Fallback-Applied headers).
	ExtraHeaders http.Header

	// IsFallback marks a result produced by the dispatcher's final
	// fallback step (§4.5 step 5): untransformed original content served
	// after every matching origin's transform call failed.
	IsFallback bool
	// FallbackKey is the distinct cache key fallback content is written
	// under, so it never collides with a transformed artifact (§3
	// invariants). Only meaningful when IsFallback is true.
	FallbackKey string
}

// Orchestrator implements with_caching (C2): bypass checks, the KV lookup,
// producer coalescing, and cache write-back.
type Orchestrator struct {
	Store   *chunkstore.Store
	Cache   cache.Cache
	Caching *config.CachingConfig

	group    singleflight.Group
	waiters  sync.Map // map[string]*int32, live callers currently joined to a key's in-flight call
}

// NewOrchestrator returns an Orchestrator backed by a chunk store over c.
func NewOrchestrator(c cache.Cache, cc *config.CachingConfig) *Orchestrator {
	return &Orchestrator{Store: chunkstore.New(c, cc), Cache: c, Caching: cc}
}

// Bypassed reports whether a request opts out of caching entirely (§4.2
// step 1): a non-GET/HEAD method, a configured bypass query parameter, or a
// client-asserted Cache-Control no-cache/no-store.
func Bypassed(r *http.Request, cc *config.CachingConfig) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	q := r.URL.Query()
	for _, p := range cc.BypassQueryParameters {
		if q.Get(p) != "" {
			return true
		}
	}
	switch r.Header.Get("Cache-Control") {
	case "no-cache", "no-store":
		return true
	}
	return false
}

// WithCaching is the C2 entry point. producer is invoked on a miss, or
// directly (uncached) when the request bypasses caching. oc supplies the
// origin's TTL overrides; cacheKey is the already-computed C6 key.
func (o *Orchestrator) WithCaching(r *http.Request, oc *config.OriginConfig, cacheKey string, producer Producer) (*chunkstore.Result, error) {
	state := reqctx.FromContext(r.Context())

	if Bypassed(r, o.Caching) {
		state.Breadcrumb("cache", "bypassed")
		return o.serveUncached(producer)
	}

	rng, err := chunkstore.ParseRange(r.Header.Get("Range"))
	if err != nil {
		return nil, NewError(KindRangeUnsatisfiable, "invalid Range header", err)
	}

	res, err := o.Store.Get(cacheKey, rng)
	switch {
	case err == nil:
		state.Breadcrumb("cache", "hit")
		metrics.CacheObjectsStored.WithLabelValues(oc.CacheName, "hit").Inc()
		return res, nil
	case errors.Is(err, chunkstore.ErrRangeNotSatisfiable):
		// The artifact is cached; only the requested range is invalid
		// against it. Answer from its known size instead of falling
		// through to the producer, which would re-run the whole
		// transform/fallback pipeline just to fail the same range check.
		state.Breadcrumb("cache", "hit")
		if size, sizeErr := o.Store.Size(cacheKey); sizeErr == nil {
			return nil, &Error{Kind: KindRangeUnsatisfiable, Message: "range not satisfiable against cached artifact", Cause: err, Size: size}
		}
	}
	state.Breadcrumb("cache", "miss")

	pr, shared, err := o.callProducer(cacheKey, producer)
	if err != nil {
		if !IsClientDisconnect(err) {
			log.Warn("producer call failed", log.Pairs{"key": cacheKey, "error": err.Error()})
		}
		return nil, err
	}
	if shared {
		metrics.CoalescedRequests.WithLabelValues(oc.Name).Inc()
	}

	o.writeBack(state, oc, cacheKey, pr)

	body := pr.Body
	res = &chunkstore.Result{
		Body:          bytes.NewReader(body),
		Status:        pr.Status,
		ContentType:   pr.ContentType,
		ContentLength: int64(len(body)),
		Metadata:      pr.Metadata,
		ExtraHeaders:  pr.ExtraHeaders,
	}
	if rng != nil {
		return sliceUncachedRange(res, rng)
	}
	return res, nil
}

// callProducer coalesces concurrent callers for the same cacheKey through a
// singleflight.Group (§4.2 step 4). Above CoalesceMaxWaiters live joiners,
// a new caller invokes producer independently instead of queueing further,
// since an unbounded join list would let one slow origin stall an
// arbitrary number of requests.
func (o *Orchestrator) callProducer(cacheKey string, producer Producer) (*ProducerResult, bool, error) {
	maxWaiters := o.Caching.CoalesceMaxWaiters
	if maxWaiters <= 0 {
		maxWaiters = 1
	}

	count := o.joinWaiters(cacheKey)
	defer o.leaveWaiters(cacheKey)

	if count > int32(maxWaiters) {
		pr, err := producer()
		return pr, false, err
	}

	v, shared, err := o.group.Do(cacheKey, func() (interface{}, error) {
		return producer()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*ProducerResult), shared, nil
}

func (o *Orchestrator) joinWaiters(key string) int32 {
	v, _ := o.waiters.LoadOrStore(key, new(int32))
	return atomic.AddInt32(v.(*int32), 1)
}

func (o *Orchestrator) leaveWaiters(key string) {
	if v, ok := o.waiters.Load(key); ok {
		atomic.AddInt32(v.(*int32), -1)
	}
}

func (o *Orchestrator) serveUncached(producer Producer) (*chunkstore.Result, error) {
	pr, err := producer()
	if err != nil {
		return nil, err
	}
	return &chunkstore.Result{
		Body:          bytes.NewReader(pr.Body),
		Status:        pr.Status,
		ContentType:   pr.ContentType,
		ContentLength: int64(len(pr.Body)),
		Metadata:      pr.Metadata,
		ExtraHeaders:  pr.ExtraHeaders,
	}, nil
}

// writeBack schedules the cacheable result to be put into the KV chunk
// store and the version counter bumped, off the response path (§4.2 step
// 5). It runs on the request's deferred-work handle so a slow store or
// slow remote backend never delays bytes already destined for the client.
// A fallback result (§4.5 step 5) is written under its own distinct key
// with the origin's short fallback TTL, and never bumps the transformed
// artifact's version counter -- it is a different logical artifact.
func (o *Orchestrator) writeBack(state *reqctx.State, oc *config.OriginConfig, cacheKey string, pr *ProducerResult) {
	if pr.Status < 200 || pr.Status >= 300 || !isCacheableContentType(pr.ContentType) {
		return
	}

	key := cacheKey
	ttl := TTLForStatus(o.Caching, oc, pr.Status)
	if pr.IsFallback {
		if !oc.FallbackCacheEnabled || pr.FallbackKey == "" {
			return
		}
		key = pr.FallbackKey
		ttl = time.Duration(oc.FallbackTTLSecs) * time.Second
	}

	body := append([]byte(nil), pr.Body...)
	meta := pr.Metadata

	state.Spawn(func() {
		if err := o.Store.Put(key, body, meta, ttl); err != nil {
			log.Warn("cache write-back failed", log.Pairs{"key": key, "error": err.Error()})
			return
		}
		metrics.CacheObjectsStored.WithLabelValues(oc.CacheName, "miss").Inc()
		if pr.IsFallback {
			return
		}
		if _, err := BumpVersion(o.Cache, cacheKey, o.Caching.VersionCASRetries); err != nil {
			log.Warn("version bump failed", log.Pairs{"key": cacheKey, "error": err.Error()})
		}
	})
}

func isCacheableContentType(ct string) bool {
	switch {
	case len(ct) >= 5 && ct[:5] == "video":
		return true
	case len(ct) >= 11 && ct[:11] == "application":
		return true
	default:
		return false
	}
}

// sliceUncachedRange applies a requested byte range to a producer result
// on the miss path, where the bytes came from the producer rather than the
// KV store (write-back runs in the background and may not have finished).
// The bypass path returns the producer result unsliced. The KV store's own
// range reconstruction (C1) only ever sees bytes after they've been put.
func sliceUncachedRange(res *chunkstore.Result, r *chunkstore.ByteRange) (*chunkstore.Result, error) {
	full, ok := res.Body.(*bytes.Reader)
	if !ok {
		return res, nil
	}
	total := res.ContentLength
	start, end, err := r.Resolve(total)
	if err != nil {
		return nil, &Error{Kind: KindRangeUnsatisfiable, Message: "range not satisfiable", Cause: err, Size: total}
	}
	buf := make([]byte, full.Len())
	full.Seek(0, 0)
	full.Read(buf)
	slice := buf[start : end+1]
	return &chunkstore.Result{
		Body:          bytes.NewReader(slice),
		Status:        206,
		ContentType:   res.ContentType,
		ContentLength: int64(len(slice)),
		ContentRange:  rangeHeader(start, end, total),
		Metadata:      res.Metadata,
		ExtraHeaders:  res.ExtraHeaders,
	}, nil
}

func rangeHeader(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, total)
}
