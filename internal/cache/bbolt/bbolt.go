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

// Package bbolt implements Cache on top of a single BoltDB file, useful
// for a single-instance deployment that wants persistence across restarts
// without running a separate Redis process.
package bbolt

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "github.com/coreos/bbolt"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// Cache stores values in a single bucket of a bbolt file. Expiry is
// stamped as an 8-byte big-endian unix timestamp prefix on the stored
// value; 0 means no expiry.
type Cache struct {
	Config *config.CachingConfig
	db     *bolt.DB
}

// New returns a bbolt Cache configured from cfg.
func New(cfg *config.CachingConfig) *Cache {
	return &Cache{Config: cfg}
}

func (c *Cache) Connect() error {
	log.Debug("bbolt cache connecting", log.Pairs{"filename": c.Config.BBolt.Filename})
	db, err := bolt.Open(c.Config.BBolt.Filename, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	c.db = db
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(c.Config.BBolt.Bucket))
		return err
	})
}

func (c *Cache) Store(key string, data []byte, ttl time.Duration) error {
	var exp uint64
	if ttl > 0 {
		exp = uint64(time.Now().Add(ttl).Unix())
	}
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf[:8], exp)
	copy(buf[8:], data)
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.Config.BBolt.Bucket))
		return b.Put([]byte(key), buf)
	})
}

func (c *Cache) Retrieve(key string) ([]byte, error) {
	var out []byte
	var expired bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.Config.BBolt.Bucket))
		v := b.Get([]byte(key))
		if v == nil || len(v) < 8 {
			return fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
		}
		exp := binary.BigEndian.Uint64(v[:8])
		if exp != 0 && uint64(time.Now().Unix()) > exp {
			expired = true
			return nil
		}
		out = append([]byte(nil), v[8:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		c.Remove(key)
		return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
	}
	return out, nil
}

func (c *Cache) Remove(keys ...string) {
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(c.Config.BBolt.Bucket))
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
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
