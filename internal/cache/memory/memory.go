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

// Package memory implements an in-process, map-backed Cache. It is the
// zero-dependency default backend, useful for tests and single-instance
// deployments where a shared KV store isn't warranted.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

type entry struct {
	data      []byte
	expiresAt time.Time
	noExpiry  bool
}

// Cache is an in-memory store: a map guarded by a sync.RWMutex.
type Cache struct {
	Config *config.CachingConfig

	mtx   sync.RWMutex
	store map[string]entry
}

// New returns a memory Cache configured from cfg.
func New(cfg *config.CachingConfig) *Cache {
	return &Cache{Config: cfg, store: make(map[string]entry)}
}

func (c *Cache) Connect() error {
	log.Debug("memory cache connecting", log.Pairs{"name": c.Config.Name})
	return nil
}

func (c *Cache) Store(key string, data []byte, ttl time.Duration) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	e := entry{data: append([]byte(nil), data...)}
	if ttl <= 0 {
		e.noExpiry = true
	} else {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.store[key] = e
	return nil
}

func (c *Cache) Retrieve(key string) ([]byte, error) {
	c.mtx.RLock()
	e, ok := c.store[key]
	c.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
	}
	if !e.noExpiry && time.Now().After(e.expiresAt) {
		c.mtx.Lock()
		delete(c.store, key)
		c.mtx.Unlock()
		return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
	}
	return append([]byte(nil), e.data...), nil
}

func (c *Cache) Remove(keys ...string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, k := range keys {
		delete(c.store, k)
	}
}

func (c *Cache) Configuration() *config.CachingConfig { return c.Config }

func (c *Cache) Close() error { return nil }
