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

// Package badger implements Cache on top of an embedded Badger LSM store,
// an alternative single-instance persistent backend to bbolt that trades
// bbolt's single-writer-lock model for badger's higher write throughput.
package badger

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// Cache wraps a badger.DB. Badger natively supports per-key TTLs via
// WithTTL, so no manual expiry stamping is needed here.
type Cache struct {
	Config *config.CachingConfig
	db     *badger.DB
}

// New returns a badger Cache configured from cfg.
func New(cfg *config.CachingConfig) *Cache {
	return &Cache{Config: cfg}
}

func (c *Cache) Connect() error {
	log.Debug("badger cache connecting", log.Pairs{"directory": c.Config.Badger.Directory})
	opts := badger.DefaultOptions(c.Config.Badger.Directory)
	if c.Config.Badger.ValueDirectory != "" {
		opts.ValueDir = c.Config.Badger.ValueDirectory
	}
	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

func (c *Cache) Store(key string, data []byte, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (c *Cache) Retrieve(key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) Remove(keys ...string) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Cache) Configuration() *config.CachingConfig { return c.Config }

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
