// Package model holds the wire types stored in and retrieved from the KV
// chunk store: artifact metadata, the chunked-artifact manifest, and the
// envelope that ties them to a body.
package model

import (
	"encoding/json"
	"time"
)

// ArtifactMetadata describes a cached artifact, whether stored as a single
// entry or as a manifest plus chunks (§3 StoredArtifact).
type ArtifactMetadata struct {
	SourcePath   string   `json:"sourcePath"`
	SourceType   string   `json:"sourceType"`
	Mode         string   `json:"mode"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	Format       string   `json:"format"`
	Quality      string   `json:"quality"`
	Compression  string   `json:"compression"`
	CacheTags    []string `json:"cacheTags,omitempty"`
	CacheVersion int      `json:"cacheVersion"`
	ContentType  string   `json:"contentType"`
	ContentLength int64   `json:"contentLength"`
	CreatedAt    time.Time `json:"createdAt"`

	IsChunked            bool  `json:"isChunked"`
	ActualTotalVideoSize int64 `json:"actualTotalVideoSize"`
}

// Manifest describes how a chunked artifact's bytes are split across chunk
// records (§3, §4.1).
type Manifest struct {
	TotalSize           int64   `json:"totalSize"`
	ChunkCount          int     `json:"chunkCount"`
	ActualChunkSizes     []int64 `json:"actualChunkSizes"`
	StandardChunkSize    int64   `json:"standardChunkSize"`
	OriginalContentType  string  `json:"originalContentType"`
}

// StoredArtifact is the envelope written under an artifact's KV key. For a
// single-entry artifact, Body holds the raw bytes and Manifest is nil. For
// a chunked artifact, Body is empty and Manifest is set; the chunk bodies
// live in their own keys (see chunkstore.chunkKey).
type StoredArtifact struct {
	Metadata ArtifactMetadata `json:"metadata"`
	Manifest *Manifest        `json:"manifest,omitempty"`
	Body     []byte           `json:"body,omitempty"`
}

// Marshal serializes the artifact envelope. The wire format is JSON for
// both a single-entry artifact and a manifest record, so the two look
// structurally alike.
func (a *StoredArtifact) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal decodes bytes previously produced by Marshal.
func (a *StoredArtifact) Unmarshal(b []byte) error {
	return json.Unmarshal(b, a)
}

// CumulativeSizes returns the running total of bytes through the end of
// each chunk: CumulativeSizes()[i] is the number of bytes in chunks
// [0, i]. Used to locate the minimal chunk span for a byte range (§4.1).
func (m *Manifest) CumulativeSizes() []int64 {
	out := make([]int64, len(m.ActualChunkSizes))
	var running int64
	for i, sz := range m.ActualChunkSizes {
		running += sz
		out[i] = running
	}
	return out
}
