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

// Package redis implements Cache on top of a shared Redis instance, the
// backend used when multiple edge processes must share one KV store.
package redis

import (
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis"

	"github.com/cdnforge/edgevideo/internal/cache"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/util/log"
)

// Cache wraps a go-redis v6 client. client_type selects the constructor:
// "cluster" uses Endpoints; any other value (including "standard") uses a
// single-endpoint client on Endpoint.
type Cache struct {
	Config *config.CachingConfig
	client goredis.Cmdable
}

// New returns a redis Cache configured from cfg. The client is constructed
// and dialed by Connect.
func New(cfg *config.CachingConfig) *Cache {
	return &Cache{Config: cfg}
}

func (c *Cache) Connect() error {
	rc := c.Config.Redis
	log.Debug("redis cache connecting", log.Pairs{"client_type": rc.ClientType, "endpoint": rc.Endpoint})

	switch strings.ToLower(rc.ClientType) {
	case "cluster":
		c.client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:    rc.Endpoints,
			Password: rc.Password,
		})
	default:
		c.client = goredis.NewClient(&goredis.Options{
			Addr:     rc.Endpoint,
			Password: rc.Password,
			DB:       rc.DB,
		})
	}
	if cmd, ok := c.client.(*goredis.Client); ok {
		return cmd.Ping().Err()
	}
	return nil
}

func (c *Cache) Store(key string, data []byte, ttl time.Duration) error {
	return c.client.Set(key, data, ttl).Err()
}

func (c *Cache) Retrieve(key string) ([]byte, error) {
	b, err := c.client.Get(key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, fmt.Errorf("%w: %s", cache.ErrKNotFound, key)
		}
		return nil, err
	}
	return b, nil
}

func (c *Cache) Remove(keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.client.Del(keys...)
}

func (c *Cache) Configuration() *config.CachingConfig { return c.Config }

func (c *Cache) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
