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

package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/api/trace"

	"github.com/cdnforge/edgevideo/internal/util/tracing"
)

// Trace opens one span per inbound request. Origins here are resolved
// dynamically by regexp (C3) rather than from a static per-origin path map,
// so unlike the span-per-configured-path approach this replaces, the span
// name is fixed at request entry rather than derived from a matched origin.
func Trace() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, span := tracing.PrepareRequest(r, tracing.Name(), "edge_request")
			defer func() {
				span.End(trace.WithEndTime(time.Now()))
			}()
			span.AddEventWithTimestamp(
				r.Context(),
				time.Now(),
				"request started",
				key.String("path", r.URL.Path),
				key.String("method", r.Method),
			)
			next.ServeHTTP(w, r)
		})
	}
}
