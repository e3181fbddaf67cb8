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
	"sync"
	"time"

	"github.com/cdnforge/edgevideo/internal/cache"
)

// versionLocks serializes writers per cache key within this process,
// satisfying §4.6's "writers of the counter serialize per key" while
// readers remain lock-free (a brief stale read is acceptable -- the
// version is a non-semantic URL-busting parameter, not a correctness gate).
var versionLocks sync.Map // map[string]*sync.Mutex

func lockFor(key string) *sync.Mutex {
	v, _ := versionLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ReadVersion reads the current version for cacheKey without bumping it
// (the cache-hit path never increments).
func ReadVersion(c cache.Cache, cacheKey string) int {
	raw, err := c.Retrieve(VersionKey(cacheKey))
	if err != nil {
		return 1
	}
	return ParseVersion(raw)
}

// BumpVersion atomically (within this process) increments the version
// counter for cacheKey, retrying up to maxRetries times on a transient
// store error, and returns the new version. Called only after a confirmed
// cache miss followed by a successful producer response (§3 VersionCounter).
func BumpVersion(c cache.Cache, cacheKey string, maxRetries int) (int, error) {
	mtx := lockFor(cacheKey)
	mtx.Lock()
	defer mtx.Unlock()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		current := ReadVersion(c, cacheKey)
		next := current + 1
		if err := c.Store(VersionKey(cacheKey), FormatVersion(next), versionNoExpiry); err != nil {
			lastErr = err
			continue
		}
		return next, nil
	}
	return 0, lastErr
}

// versionNoExpiry is the TTL passed to Store for the version counter: it
// never expires on its own, since losing it would silently reset cache
// busting for a key that's still otherwise live.
var versionNoExpiry = time.Duration(0)
