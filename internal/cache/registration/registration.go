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

// Package registration builds and connects one Cache per configured
// CachingConfig, and hands them out by name to origins that reference them.
package registration

import (
	"fmt"
	"sync"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/cache/badger"
	"github.com/cdnforge/edgevideo/internal/cache/bbolt"
	"github.com/cdnforge/edgevideo/internal/cache/filesystem"
	"github.com/cdnforge/edgevideo/internal/cache/memory"
	"github.com/cdnforge/edgevideo/internal/cache/redis"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

var (
	mtx   sync.Mutex
	caches = map[string]cache.Cache{}
)

// LoadCachesFromConfig instantiates and connects a Cache for every entry
// in cfg.Caches, replacing any previously registered set.
func LoadCachesFromConfig(cfg *config.EdgeConfig) error {
	mtx.Lock()
	defer mtx.Unlock()

	next := make(map[string]cache.Cache, len(cfg.Caches))
	for name, cc := range cfg.Caches {
		c, err := newBackend(cc)
		if err != nil {
			return fmt.Errorf("cache %q: %w", name, err)
		}
		if err := c.Connect(); err != nil {
			return fmt.Errorf("cache %q: connect: %w", name, err)
		}
		log.Info("cache connected", log.Pairs{"name": name, "type": cc.CacheType})
		next[name] = c
	}
	for name, old := range caches {
		if _, ok := next[name]; !ok {
			_ = old.Close()
		}
	}
	caches = next
	return nil
}

// GetCache returns the registered cache with the given name.
func GetCache(name string) (cache.Cache, error) {
	mtx.Lock()
	defer mtx.Unlock()
	c, ok := caches[name]
	if !ok {
		return nil, fmt.Errorf("cache %q is not registered", name)
	}
	return c, nil
}

// CloseAll closes every registered cache, for graceful shutdown.
func CloseAll() {
	mtx.Lock()
	defer mtx.Unlock()
	for name, c := range caches {
		if err := c.Close(); err != nil {
			log.Warn("error closing cache", log.Pairs{"name": name, "error": err.Error()})
		}
	}
	caches = map[string]cache.Cache{}
}

func newBackend(cc *config.CachingConfig) (cache.Cache, error) {
	switch cc.CacheTypeID {
	case config.CacheTypeMemory:
		return memory.New(cc), nil
	case config.CacheTypeRedis:
		return redis.New(cc), nil
	case config.CacheTypeFilesystem:
		return filesystem.New(cc), nil
	case config.CacheTypeBBolt:
		return bbolt.New(cc), nil
	case config.CacheTypeBadger:
		return badger.New(cc), nil
	default:
		return nil, fmt.Errorf("unknown cache_type_id %v", cc.CacheTypeID)
	}
}
