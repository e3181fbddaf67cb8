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

package config

import "time"

// CacheType is the synthetic, validated form of CachingConfig.CacheType.
type CacheType int

const (
	// CacheTypeMemory is an in-process map-backed cache, the zero-dependency default.
	CacheTypeMemory CacheType = iota
	// CacheTypeRedis stores artifacts in Redis (standard or cluster).
	CacheTypeRedis
	// CacheTypeFilesystem stores artifacts as files on disk.
	CacheTypeFilesystem
	// CacheTypeBBolt stores artifacts in a single BoltDB file.
	CacheTypeBBolt
	// CacheTypeBadger stores artifacts in an embedded Badger LSM store.
	CacheTypeBadger
)

// CacheTypeNames maps a configured cache_type string to its CacheType.
var CacheTypeNames = map[string]CacheType{
	"memory":     CacheTypeMemory,
	"redis":      CacheTypeRedis,
	"filesystem": CacheTypeFilesystem,
	"bbolt":      CacheTypeBBolt,
	"badger":     CacheTypeBadger,
}

func (t CacheType) String() string {
	switch t {
	case CacheTypeRedis:
		return "redis"
	case CacheTypeFilesystem:
		return "filesystem"
	case CacheTypeBBolt:
		return "bbolt"
	case CacheTypeBadger:
		return "badger"
	default:
		return "memory"
	}
}

// CachingConfig is a named cache backend plus the TTL policy and bypass
// rules applied to everything stored through it.
type CachingConfig struct {
	Name        string `toml:"-" json:"name"`
	CacheType   string `toml:"cache_type" json:"cacheType"`
	CacheTypeID CacheType `toml:"-" json:"-"`
	Compression bool   `toml:"compression" json:"compression"`

	Index      CacheIndexConfig      `toml:"index" json:"index"`
	Redis      RedisCacheConfig      `toml:"redis" json:"redis"`
	Filesystem FilesystemCacheConfig `toml:"filesystem" json:"filesystem"`
	BBolt      BBoltCacheConfig      `toml:"bbolt" json:"bbolt"`
	Badger     BadgerCacheConfig     `toml:"badger" json:"badger"`

	TTL CacheTTLConfig `toml:"ttl" json:"ttl"`

	// EnableCacheTags is loaded and reported in the config snapshot; no
	// component reads it, and no cache-tag purge is performed.
	EnableCacheTags bool `toml:"enable_cache_tags" json:"enableCacheTags"`
	// BypassQueryParameters names query flags that, when present, skip both cache tiers (§6).
	BypassQueryParameters []string `toml:"bypass_query_parameters" json:"bypassQueryParameters"`

	// DefaultMaxAge is loaded and reported in the config snapshot; no
	// component reads it, and responses carry no derived Cache-Control header.
	DefaultMaxAge int `toml:"default_max_age" json:"defaultMaxAge"`

	// RefreshRatio is the fraction of TTL remaining that NeedsRefresh tests
	// against. No read path calls NeedsRefresh, so reads never re-put an entry.
	RefreshRatio float64 `toml:"refresh_ratio" json:"refreshRatio"`

	// ChunkSizeBytes is the fixed chunk size used when splitting large artifacts (§4.1). Defaults to 5 MiB.
	ChunkSizeBytes int64 `toml:"chunk_size_bytes" json:"chunkSizeBytes"`
	// ChunkThresholdBytes is the size above which an artifact is chunked rather than stored whole. Defaults to 20 MiB.
	ChunkThresholdBytes int64 `toml:"chunk_threshold_bytes" json:"chunkThresholdBytes"`

	// CoalesceMaxWaiters bounds the number of callers that may join one in-flight producer (§4.2, §5).
	CoalesceMaxWaiters int `toml:"coalesce_max_waiters" json:"coalesceMaxWaiters"`
	// VersionCASRetries bounds compare-and-set retries on the version counter (§4.6, §5).
	VersionCASRetries int `toml:"version_cas_retries" json:"versionCasRetries"`
}

// CacheTTLConfig is the default TTL-by-status-class table (§4.7).
type CacheTTLConfig struct {
	OkSecs          int `toml:"ok" json:"ok"`
	RedirectsSecs   int `toml:"redirects" json:"redirects"`
	ClientErrorSecs int `toml:"client_error" json:"clientError"`
	ServerErrorSecs int `toml:"server_error" json:"serverError"`
}

// NewTTLTable returns the §4.7 defaults.
func NewTTLTable() CacheTTLConfig {
	return CacheTTLConfig{
		OkSecs:          86400,
		RedirectsSecs:   3600,
		ClientErrorSecs: 60,
		ServerErrorSecs: 10,
	}
}

// ForStatus returns the configured TTL for an HTTP status code.
func (t CacheTTLConfig) ForStatus(status int) time.Duration {
	switch {
	case status >= 200 && status < 300:
		return time.Duration(t.OkSecs) * time.Second
	case status >= 300 && status < 400:
		return time.Duration(t.RedirectsSecs) * time.Second
	case status >= 400 && status < 500:
		return time.Duration(t.ClientErrorSecs) * time.Second
	default:
		return time.Duration(t.ServerErrorSecs) * time.Second
	}
}

// CacheIndexConfig defines the cache-size reaping behavior.
type CacheIndexConfig struct {
	ReapIntervalSecs      int   `toml:"reap_interval_secs" json:"reapIntervalSecs"`
	FlushIntervalSecs     int   `toml:"flush_interval_secs" json:"flushIntervalSecs"`
	MaxSizeBytes          int64 `toml:"max_size_bytes" json:"maxSizeBytes"`
	MaxSizeBackoffBytes   int64 `toml:"max_size_backoff_bytes" json:"maxSizeBackoffBytes"`

	ReapInterval  time.Duration `toml:"-" json:"-"`
	FlushInterval time.Duration `toml:"-" json:"-"`
}

// RedisCacheConfig configures a go-redis client.
type RedisCacheConfig struct {
	ClientType string   `toml:"client_type" json:"clientType"`
	Protocol   string   `toml:"protocol" json:"protocol"`
	Endpoint   string   `toml:"endpoint" json:"endpoint"`
	Endpoints  []string `toml:"endpoints" json:"endpoints"`
	Password   string   `toml:"password" json:"-"`
	DB         int      `toml:"db" json:"db"`
}

// FilesystemCacheConfig configures the filesystem cache backend.
type FilesystemCacheConfig struct {
	CachePath string `toml:"cache_path" json:"cachePath"`
}

// BBoltCacheConfig configures the BoltDB cache backend.
type BBoltCacheConfig struct {
	Filename string `toml:"filename" json:"filename"`
	Bucket   string `toml:"bucket" json:"bucket"`
}

// BadgerCacheConfig configures the Badger cache backend.
type BadgerCacheConfig struct {
	Directory      string `toml:"directory" json:"directory"`
	ValueDirectory string `toml:"value_directory" json:"valueDirectory"`
}

// NewCachingConfig returns a CachingConfig with baked-in defaults.
func NewCachingConfig() *CachingConfig {
	return &CachingConfig{
		CacheType:           defaultCacheType,
		CacheTypeID:         defaultCacheTypeID,
		Compression:         defaultCacheCompression,
		Redis:               RedisCacheConfig{ClientType: defaultRedisClientType, Protocol: defaultRedisProtocol, Endpoint: defaultRedisEndpoint},
		Filesystem:          FilesystemCacheConfig{CachePath: defaultCachePath},
		BBolt:               BBoltCacheConfig{Filename: defaultBBoltFile, Bucket: defaultBBoltBucket},
		Badger:              BadgerCacheConfig{Directory: defaultCachePath, ValueDirectory: defaultCachePath},
		TTL:                 NewTTLTable(),
		BypassQueryParameters: []string{"debug", "nocache", "bypass"},
		DefaultMaxAge:       defaultTTLSecs,
		RefreshRatio:        0.1,
		ChunkSizeBytes:      5 * 1024 * 1024,
		ChunkThresholdBytes: 20 * 1024 * 1024,
		CoalesceMaxWaiters:  defaultCoalesceMaxWaiters,
		VersionCASRetries:   defaultVersionCASRetries,
		Index: CacheIndexConfig{
			ReapIntervalSecs:    defaultCacheIndexReap,
			FlushIntervalSecs:   defaultCacheIndexFlush,
			MaxSizeBytes:        defaultCacheMaxSizeBytes,
			MaxSizeBackoffBytes: defaultMaxSizeBackoffBytes,
		},
	}
}

// Copy returns a deep copy of the CachingConfig.
func (c *CachingConfig) Copy() *CachingConfig {
	n := *c
	n.BypassQueryParameters = append([]string(nil), c.BypassQueryParameters...)
	n.Redis.Endpoints = append([]string(nil), c.Redis.Endpoints...)
	return &n
}
