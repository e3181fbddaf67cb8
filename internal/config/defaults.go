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

const (
	defaultLogFile  = ""
	defaultLogLevel = "INFO"

	defaultProxyListenPort = 9090

	defaultMetricsListenPort = 8082

	defaultTracerImplementation = "stdout"

	defaultCacheType        = "memory"
	defaultCacheTypeID      = CacheTypeMemory
	defaultCacheCompression = true

	defaultTTLSecs = 86400

	defaultCachePath = "/tmp/edgevideo"

	defaultRedisClientType = "standard"
	defaultRedisProtocol   = "tcp"
	defaultRedisEndpoint   = "redis:6379"

	defaultBBoltFile   = "edgevideo.db"
	defaultBBoltBucket = "edgevideo"

	defaultCacheIndexReap      = 3
	defaultCacheIndexFlush     = 5
	defaultCacheMaxSizeBytes   = 536870912
	defaultMaxSizeBackoffBytes = 16777216

	defaultOriginTimeoutSecs    = 30
	defaultOriginCacheName      = "default"
	defaultMaxObjectSizeBytes   = 104857600
	defaultFallbackTTLSecs      = 30

	defaultBreadcrumbMaxItems = 25

	defaultCoalesceMaxWaiters = 256
	defaultVersionCASRetries  = 5

	defaultConfigHandlerPath = "/admin/config"
	defaultPingHandlerPath   = "/internal/ping"
)
