// Package chunkstore implements the KV chunk store (C1): artifacts up to
// the configured threshold are stored as a single KV entry; larger
// artifacts are split into fixed-size chunks under a manifest, and ranges
// are served by fetching only the minimal chunk span.
package chunkstore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/snappy"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/model"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// ErrCorrupt is returned when a stored artifact fails an internal
// consistency check (length mismatch, missing chunk, zero-length chunk).
var ErrCorrupt = fmt.Errorf("chunkstore: corrupt artifact")

// lockTTL bounds how long a chunk-write lock record is honored before a
// concurrent writer is free to proceed as if no write were in flight.
const lockTTL = 30 * time.Second

// Store puts and gets artifacts through a cache.Cache backend, applying
// the chunking and range-reconstruction rules of C1.
type Store struct {
	Cache  cache.Cache
	Config *config.CachingConfig
}

// New returns a Store backed by c, using cfg for chunk sizing/thresholds.
func New(c cache.Cache, cfg *config.CachingConfig) *Store {
	return &Store{Cache: c, Config: cfg}
}

// Result is what Get returns on a hit: a streamable body plus the response
// metadata needed to synthesize headers.
type Result struct {
	Body          io.Reader
	Status        int
	ContentType   string
	ContentLength int64
	ContentRange  string
	Metadata      model.ArtifactMetadata

	// ExtraHeaders carries response headers the producer that filled this
	// result wants set on the client response (e.g. the dispatcher's
	// X-Pattern-Fallback-*/X-Fallback-Applied headers). Never populated on
	// a plain cache-hit read, since no producer ran.
	ExtraHeaders http.Header
}

func manifestKey(key string) string { return key }
func lockKey(key string) string     { return key + "_lock" }
func chunkKey(key string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", key, i)
}

// Put stores bytes under key, chunking if they exceed the configured
// threshold. Ordering within a chunked put is: acquire lock, write chunks,
// write manifest, release lock -- a reader can never observe a manifest
// whose chunks aren't all present (§4.1).
func (s *Store) Put(key string, body []byte, meta model.ArtifactMetadata, ttl time.Duration) error {
	meta.ActualTotalVideoSize = int64(len(body))
	meta.ContentLength = int64(len(body))

	threshold := s.Config.ChunkThresholdBytes
	if threshold <= 0 {
		threshold = 20 * 1024 * 1024
	}

	if int64(len(body)) <= threshold {
		meta.IsChunked = false
		art := &model.StoredArtifact{Metadata: meta, Body: body}
		return s.putEnvelope(key, art, ttl)
	}

	return s.putChunked(key, body, meta, ttl)
}

func (s *Store) putChunked(key string, body []byte, meta model.ArtifactMetadata, ttl time.Duration) error {
	chunkSize := s.Config.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = 5 * 1024 * 1024
	}

	chunkCount := int((int64(len(body)) + chunkSize - 1) / chunkSize)

	if err := s.acquireLock(key, chunkSize, chunkCount, ttl); err != nil {
		return err
	}
	defer s.Cache.Remove(lockKey(key))

	sizes := make([]int64, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > int64(len(body)) {
			end = int64(len(body))
		}
		chunk := body[start:end]
		if len(chunk) == 0 {
			return fmt.Errorf("%w: chunk %d has zero length", ErrCorrupt, i)
		}
		if err := s.Cache.Store(chunkKey(key, i), chunk, ttl); err != nil {
			log.Warn("chunk write failed, aborting artifact", log.Pairs{"key": key, "chunk": i, "error": err.Error()})
			return err
		}
		sizes = append(sizes, int64(len(chunk)))
	}

	meta.IsChunked = true
	art := &model.StoredArtifact{
		Metadata: meta,
		Manifest: &model.Manifest{
			TotalSize:           int64(len(body)),
			ChunkCount:          chunkCount,
			ActualChunkSizes:    sizes,
			StandardChunkSize:   chunkSize,
			OriginalContentType: meta.ContentType,
		},
	}
	return s.putEnvelope(manifestKey(key), art, ttl)
}

// acquireLock writes a short-TTL marker recording the chunk shape about to
// be written. If an incompatible in-flight write is already recorded, this
// write aborts rather than risk an inconsistent chunk set (§4.1).
func (s *Store) acquireLock(key string, chunkSize int64, chunkCount int, ttl time.Duration) error {
	marker := []byte(fmt.Sprintf("%d:%d", chunkSize, chunkCount))
	if existing, err := s.Cache.Retrieve(lockKey(key)); err == nil {
		if !bytes.Equal(existing, marker) {
			return fmt.Errorf("chunkstore: incompatible concurrent write in progress for %q", key)
		}
	}
	lt := lockTTL
	if ttl > 0 && ttl < lt {
		lt = ttl
	}
	return s.Cache.Store(lockKey(key), marker, lt)
}

func (s *Store) putEnvelope(key string, art *model.StoredArtifact, ttl time.Duration) error {
	b, err := art.Marshal()
	if err != nil {
		return err
	}
	if s.Config.Compression {
		b = snappy.Encode(nil, b)
	}
	return s.Cache.Store(key, b, ttl)
}

func (s *Store) getEnvelope(key string) (*model.StoredArtifact, error) {
	b, err := s.Cache.Retrieve(key)
	if err != nil {
		return nil, err
	}
	if s.Config.Compression {
		if dec, derr := snappy.Decode(nil, b); derr == nil {
			b = dec
		}
	}
	art := &model.StoredArtifact{}
	if err := art.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return art, nil
}

// Get retrieves an artifact, optionally satisfying only a byte range. A
// nil byteRange retrieves the entire artifact.
func (s *Store) Get(key string, r *ByteRange) (*Result, error) {
	art, err := s.getEnvelope(manifestKey(key))
	if err != nil {
		return nil, err
	}

	if !art.Metadata.IsChunked {
		if int64(len(art.Body)) != art.Metadata.ActualTotalVideoSize {
			return nil, fmt.Errorf("%w: single-entry size mismatch for %q", ErrCorrupt, key)
		}
		return s.sliceSingle(art, r)
	}
	return s.sliceChunked(key, art, r)
}

// Size returns an artifact's total byte size without resolving a range,
// so a range request against an already-cached artifact can synthesize a
// 416's Content-Range without re-invoking the producer (§4.7).
func (s *Store) Size(key string) (int64, error) {
	art, err := s.getEnvelope(manifestKey(key))
	if err != nil {
		return 0, err
	}
	return art.Metadata.ActualTotalVideoSize, nil
}

func (s *Store) sliceSingle(art *model.StoredArtifact, r *ByteRange) (*Result, error) {
	body := art.Body
	total := int64(len(body))
	if r == nil {
		return &Result{
			Body: bytes.NewReader(body), Status: 200,
			ContentType: art.Metadata.ContentType, ContentLength: total,
			Metadata: art.Metadata,
		}, nil
	}
	start, end, err := r.Resolve(total)
	if err != nil {
		return nil, err
	}
	slice := body[start : end+1]
	return &Result{
		Body: bytes.NewReader(slice), Status: 206,
		ContentType: art.Metadata.ContentType, ContentLength: int64(len(slice)),
		ContentRange: fmt.Sprintf("bytes %d-%d/%d", start, end, total),
		Metadata:     art.Metadata,
	}, nil
}

func (s *Store) sliceChunked(key string, art *model.StoredArtifact, r *ByteRange) (*Result, error) {
	m := art.Manifest
	if m.TotalSize != art.Metadata.ActualTotalVideoSize {
		return nil, fmt.Errorf("%w: manifest total_size mismatch for %q", ErrCorrupt, key)
	}
	cumulative := m.CumulativeSizes()

	if r == nil {
		return s.streamChunks(key, m, 0, m.ChunkCount-1, false, 0, 0, art.Metadata)
	}

	start, end, err := r.Resolve(m.TotalSize)
	if err != nil {
		return nil, err
	}

	first := indexForOffset(cumulative, start)
	last := indexForEnd(cumulative, end)
	if first < 0 || last < 0 || first >= m.ChunkCount || last >= m.ChunkCount {
		return nil, fmt.Errorf("%w: range not satisfiable from manifest for %q", ErrCorrupt, key)
	}

	firstChunkStart := int64(0)
	if first > 0 {
		firstChunkStart = cumulative[first-1]
	}
	trimStart := start - firstChunkStart

	lastChunkStart := int64(0)
	if last > 0 {
		lastChunkStart = cumulative[last-1]
	}
	trimEnd := end - lastChunkStart

	res, err := s.streamChunks(key, m, first, last, true, trimStart, trimEnd, art.Metadata)
	if err != nil {
		return nil, err
	}
	res.Status = 206
	res.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, m.TotalSize)
	return res, nil
}

// streamChunks fetches chunks [first, last]. When trim is true, firstSkip
// bytes are dropped from the front of chunk `first` and only bytes through
// lastKeepEnd (inclusive, 0-indexed within chunk `last`) are kept from it;
// when trim is false (a full, rangeless read) every chunk is kept whole.
func (s *Store) streamChunks(key string, m *model.Manifest, first, last int, trim bool, firstSkip, lastKeepEnd int64, meta model.ArtifactMetadata) (*Result, error) {
	var buf bytes.Buffer
	for i := first; i <= last; i++ {
		b, err := s.Cache.Retrieve(chunkKey(key, i))
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d unavailable for %q: %v", ErrCorrupt, i, key, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: chunk %d is empty for %q", ErrCorrupt, i, key)
		}
		lo := int64(0)
		hi := int64(len(b))
		if trim {
			if i == first {
				lo = firstSkip
			}
			if i == last {
				hi = lastKeepEnd + 1
			}
		}
		if lo < 0 || hi > int64(len(b)) || lo > hi {
			return nil, fmt.Errorf("%w: chunk %d slice bounds invalid for %q", ErrCorrupt, i, key)
		}
		buf.Write(b[lo:hi])
	}

	status := 200
	if first != 0 || last != m.ChunkCount-1 {
		status = 206
	}
	return &Result{
		Body: bytes.NewReader(buf.Bytes()), Status: status,
		ContentType: meta.ContentType, ContentLength: int64(buf.Len()),
		Metadata: meta,
	}, nil
}

// indexForOffset returns min i such that cumulative[i] > offset.
func indexForOffset(cumulative []int64, offset int64) int {
	for i, c := range cumulative {
		if c > offset {
			return i
		}
	}
	return -1
}

// indexForEnd returns min i such that cumulative[i] >= end+1.
func indexForEnd(cumulative []int64, end int64) int {
	for i, c := range cumulative {
		if c >= end+1 {
			return i
		}
	}
	return -1
}

// Remove deletes the manifest/single-entry and, if a manifest is present,
// every chunk it references.
func (s *Store) Remove(key string) {
	art, err := s.getEnvelope(key)
	if err == nil && art.Metadata.IsChunked && art.Manifest != nil {
		keys := make([]string, 0, art.Manifest.ChunkCount)
		for i := 0; i < art.Manifest.ChunkCount; i++ {
			keys = append(keys, chunkKey(key, i))
		}
		s.Cache.Remove(keys...)
	}
	s.Cache.Remove(key)
}
