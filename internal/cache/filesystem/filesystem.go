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

// Package filesystem implements Cache by writing one file per key under a
// configured directory, with the expiry stamped into a sidecar file.
package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// Cache stores values as files under Config.Filesystem.CachePath.
type Cache struct {
	Config *config.CachingConfig
}

// New returns a filesystem Cache configured from cfg.
func New(cfg *config.CachingConfig) *Cache {
	return &Cache{Config: cfg}
}

func (c *Cache) Connect() error {
	path := c.Config.Filesystem.CachePath
	log.Debug("filesystem cache connecting", log.Pairs{"path": path})
	return os.MkdirAll(path, 0755)
}

func (c *Cache) dataPath(key string) string {
	h := sha256.Sum256([]byte(key))
	return filepath.Join(c.Config.Filesystem.CachePath, hex.EncodeToString(h[:])+".data")
}

func (c *Cache) expiryPath(key string) string {
	return c.dataPath(key) + ".exp"
}

func (c *Cache) Store(key string, data []byte, ttl time.Duration) error {
	if err := os.WriteFile(c.dataPath(key), data, 0644); err != nil {
		return err
	}
	if ttl <= 0 {
		_ = os.Remove(c.expiryPath(key))
		return nil
	}
	exp := time.Now().Add(ttl).Unix()
	return os.WriteFile(c.expiryPath(key), []byte(strconv.FormatInt(exp, 10)), 0644)
}

func (c *Cache) Retrieve(key string) ([]byte, error) {
	if b, err := os.ReadFile(c.expiryPath(key)); err == nil {
		if ts, perr := strconv.ParseInt(string(b), 10, 64); perr == nil {
			if time.Now().Unix() > ts {
				c.Remove(key)
				return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
			}
		}
	}
	data, err := os.ReadFile(c.dataPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (c *Cache) Remove(keys ...string) {
	for _, k := range keys {
		_ = os.Remove(c.dataPath(k))
		_ = os.Remove(c.expiryPath(k))
	}
}

func (c *Cache) Configuration() *config.CachingConfig { return c.Config }

func (c *Cache) Close() error { return nil }
