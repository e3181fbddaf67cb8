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

// Package cache defines the storage-agnostic interface every KV backend
// implements, so the chunk store and the cache orchestrator (C1, C2) never
// reference a concrete backend directly.
package cache

import (
	"errors"
	"time"

	"github.com/cdnforge/edgevideo/internal/config"
)

// LookupStatus describes the outcome of a Retrieve call.
type LookupStatus int

const (
	// LookupStatusHit means the key was found and is still within its TTL.
	LookupStatusHit LookupStatus = iota
	// LookupStatusKMiss means the key was not present at all.
	LookupStatusKMiss
	// LookupStatusRangeMiss means the manifest was found but a requested
	// chunk span was not satisfiable from stored chunks alone.
	LookupStatusRangeMiss
)

func (s LookupStatus) String() string {
	switch s {
	case LookupStatusHit:
		return "hit"
	case LookupStatusRangeMiss:
		return "range_miss"
	default:
		return "kmiss"
	}
}

// ErrKNotFound is returned by Retrieve when the key does not exist.
var ErrKNotFound = errors.New("cache: key not found")

// Cache is implemented by every KV backend (memory, redis, filesystem,
// bbolt, badger). It deliberately has no notion of chunking, manifests or
// video semantics -- that lives one layer up, in the chunk store -- so a
// backend only has to know how to hold bytes under a key for a TTL.
type Cache interface {
	// Connect opens/initializes the backend (dialing Redis, opening a
	// bbolt/badger file, creating a cache directory, ...).
	Connect() error
	// Store writes data under key with the given TTL. A zero TTL means
	// the entry never expires on its own (still subject to eviction).
	Store(key string, data []byte, ttl time.Duration) error
	// Retrieve reads the value stored under key. It returns ErrKNotFound
	// (wrapped) when the key is absent or has expired.
	Retrieve(key string) ([]byte, error)
	// Remove deletes one or more keys. Removing an absent key is not an error.
	Remove(keys ...string)
	// Configuration returns the CachingConfig this instance was built from.
	Configuration() *config.CachingConfig
	// Close releases any held resources (connections, file handles).
	Close() error
}
