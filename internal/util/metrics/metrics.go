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

// Package metrics declares the application's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ProxyRequestStatus counts proxied/transformed requests by origin, cache status and HTTP status
	ProxyRequestStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgevideo",
			Name:      "proxy_requests_total",
			Help:      "Count of front end requests handled by origin name, cache status and result code",
		},
		[]string{"origin_name", "origin_type", "method", "cache_status", "http_status", "path"},
	)

	// ProxyRequestDuration observes request latency by the same dimensions as ProxyRequestStatus
	ProxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgevideo",
			Name:      "proxy_request_duration_seconds",
			Help:      "Time required to proxy or transform a request",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"origin_name", "origin_type", "method", "cache_status", "http_status", "path"},
	)

	// CacheObjectsStored counts KV chunk store writes by kind (single, manifest, chunk)
	CacheObjectsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgevideo",
			Name:      "cache_objects_stored_total",
			Help:      "Count of objects written to the KV chunk store",
		},
		[]string{"cache_name", "kind"},
	)

	// CoalescedRequests counts requests that were satisfied by an in-flight producer rather than invoking it again
	CoalescedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgevideo",
			Name:      "coalesced_requests_total",
			Help:      "Count of requests served by joining an in-flight producer call",
		},
		[]string{"origin_name"},
	)

	// DispatchFailovers counts transformation-origin failover attempts
	DispatchFailovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgevideo",
			Name:      "dispatch_failovers_total",
			Help:      "Count of times the transformation dispatcher advanced to an alternative origin",
		},
		[]string{"origin_name", "reason"},
	)

	// FallbackServed counts requests served from original (untransformed) content after exhausting all origins
	FallbackServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgevideo",
			Name:      "fallback_served_total",
			Help:      "Count of requests served as untransformed fallback content",
		},
		[]string{"origin_name", "cache_hit"},
	)
)

func init() {
	prometheus.MustRegister(
		ProxyRequestStatus,
		ProxyRequestDuration,
		CacheObjectsStored,
		CoalescedRequests,
		DispatchFailovers,
		FallbackServed,
	)
}
