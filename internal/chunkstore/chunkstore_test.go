package chunkstore

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/cdnforge/edgevideo/internal/cache/memory"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/model"
)

func newTestStore(t *testing.T, chunkSize, threshold int64) *Store {
	t.Helper()
	cc := config.NewCachingConfig()
	cc.Compression = false
	cc.ChunkSizeBytes = chunkSize
	cc.ChunkThresholdBytes = threshold
	c := memory.New(cc)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return New(c, cc)
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func TestSingleEntryRoundTrip(t *testing.T) {
	s := newTestStore(t, 5*1024*1024, 20*1024*1024)
	body := bytes.Repeat([]byte{0x41}, 1024*1024)
	meta := model.ArtifactMetadata{SourcePath: "videos/alpha.mp4", ContentType: "video/mp4"}

	if err := s.Put("video:v/alpha.mp4", body, meta, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := s.Get("video:v/alpha.mp4", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Status != 200 {
		t.Fatalf("expected 200, got %d", res.Status)
	}
	if res.ContentLength != int64(len(body)) {
		t.Fatalf("expected content length %d, got %d", len(body), res.ContentLength)
	}
	got := readAll(t, res.Body)
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch")
	}
	if res.Metadata.IsChunked {
		t.Fatalf("expected single-entry artifact, got chunked")
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	s := newTestStore(t, 5*1024*1024, 20*1024*1024)

	body := make([]byte, 25*1024*1024)
	for i := 0; i < 5; i++ {
		v := byte(0x00)
		if i%2 == 1 {
			v = 0xFF
		}
		start := i * 1024 * 1024
		for j := start; j < start+1024*1024; j++ {
			body[j] = v
		}
	}
	meta := model.ArtifactMetadata{SourcePath: "videos/beta.mp4", ContentType: "video/mp4"}

	if err := s.Put("video:v/beta.mp4", body, meta, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := s.Get("video:v/beta.mp4", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Status != 200 {
		t.Fatalf("expected 200, got %d", res.Status)
	}
	got := readAll(t, res.Body)
	if !bytes.Equal(got, body) {
		t.Fatalf("full chunked body mismatch")
	}
}

func TestChunkedRangeAcrossBoundary(t *testing.T) {
	s := newTestStore(t, 5*1024*1024, 20*1024*1024)

	total := 25 * 1024 * 1024
	body := make([]byte, total)
	for i := 0; i < 5; i++ {
		v := byte(0x00)
		if i%2 == 1 {
			v = 0xFF
		}
		start := i * 5 * 1024 * 1024
		end := start + 5*1024*1024
		for j := start; j < end; j++ {
			body[j] = v
		}
	}
	meta := model.ArtifactMetadata{SourcePath: "videos/beta.mp4", ContentType: "video/mp4"}
	if err := s.Put("video:v/beta.mp4", body, meta, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	r, err := ParseRange("bytes=5242879-10485760")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	res, err := s.Get("video:v/beta.mp4", r)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Status != 206 {
		t.Fatalf("expected 206, got %d", res.Status)
	}
	if res.ContentLength != 5242882 {
		t.Fatalf("expected content length 5242882, got %d", res.ContentLength)
	}
	wantRange := "bytes 5242879-10485760/26214400"
	if res.ContentRange != wantRange {
		t.Fatalf("expected content-range %q, got %q", wantRange, res.ContentRange)
	}
	got := readAll(t, res.Body)
	want := body[5242879:10485761]
	if !bytes.Equal(got, want) {
		t.Fatalf("range body mismatch")
	}
}

func TestSingleEntrySizeMismatchRejected(t *testing.T) {
	// A single-entry artifact whose body length disagrees with its
	// recorded total size must be reported as corrupt.
	s := newTestStore(t, 5*1024*1024, 20*1024*1024)
	body := []byte("short")
	meta := model.ArtifactMetadata{SourcePath: "x", ContentType: "video/mp4"}
	if err := s.Put("k", body, meta, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Corrupt the stored envelope by overwriting with a shorter body via
	// a direct cache write, then confirm Get reports it as corrupt.
	art := &model.StoredArtifact{Metadata: meta, Body: []byte("x")}
	art.Metadata.ActualTotalVideoSize = int64(len(body))
	b, _ := art.Marshal()
	if err := s.Cache.Store("k", b, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := s.Get("k", nil); err == nil {
		t.Fatalf("expected corrupt artifact to be reported as an error")
	}
}

func TestRemoveDeletesChunksAndManifest(t *testing.T) {
	s := newTestStore(t, 5*1024*1024, 20*1024*1024)
	body := bytes.Repeat([]byte{1}, 12*1024*1024)
	meta := model.ArtifactMetadata{SourcePath: "x", ContentType: "video/mp4"}
	if err := s.Put("k", body, meta, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Remove("k")
	if _, err := s.Get("k", nil); err == nil {
		t.Fatalf("expected removed artifact to miss")
	}
}
