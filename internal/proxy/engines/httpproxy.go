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
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cdnforge/edgevideo/internal/chunkstore"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	"github.com/cdnforge/edgevideo/internal/proxy/origins"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/metrics"
)

// PrepareResponseWriter sets the response headers and status line, and
// returns w itself as the io.Writer the body should be copied into.
func PrepareResponseWriter(w http.ResponseWriter, code int, header http.Header) io.Writer {
	h := w.Header()
	for k, v := range header {
		for _, vv := range v {
			h.Add(k, vv)
		}
	}
	h.Set("Accept-Ranges", "bytes")
	w.WriteHeader(code)
	return w
}

// Respond writes a complete response (headers, status, body) to w.
func Respond(w http.ResponseWriter, code int, header http.Header, body []byte) {
	writer := PrepareResponseWriter(w, code, header)
	writer.Write(body)
}

// WriteResult streams a chunkstore.Result to the client, setting the
// Content-Length/Content-Range/Content-Type headers its status implies
// (§4.7 response synthesis).
func WriteResult(w http.ResponseWriter, res *chunkstore.Result, extra http.Header) {
	h := http.Header{}
	for k, v := range extra {
		h[k] = v
	}
	if res.ContentType != "" {
		h.Set("Content-Type", res.ContentType)
	}
	h.Set("Content-Length", strconv.FormatInt(res.ContentLength, 10))
	if res.ContentRange != "" {
		h.Set("Content-Range", res.ContentRange)
	}
	writer := PrepareResponseWriter(w, res.Status, h)
	io.Copy(writer, res.Body)
}

// RespondRangeNotSatisfiable writes a 416 with the required
// Content-Range: bytes */<size> header (§4.7).
func RespondRangeNotSatisfiable(w http.ResponseWriter, totalSize int64) {
	h := http.Header{"Content-Range": []string{"bytes */" + strconv.FormatInt(totalSize, 10)}}
	Respond(w, http.StatusRequestedRangeNotSatisfiable, h, nil)
}

// Passthrough proxies a request straight to the primary source with no
// transformation and no KV caching, for requests whose extension is in the
// configured passthrough whitelist (§4.5 Passthrough).
func Passthrough(w http.ResponseWriter, r *http.Request, f *fetch.Fetcher, oc *config.OriginConfig, groups map[string]string) {
	start := time.Now()
	sources := origins.ResolveSources(oc, groups)
	src, ok := primarySource(sources)
	if !ok {
		http.Error(w, "no usable source", http.StatusBadGateway)
		return
	}

	resp, err := f.Fetch(r.Context(), src, r.Header.Get("Range"))
	if err != nil {
		log.Error("passthrough fetch failed", log.Pairs{"origin": oc.Name, "path": src.Path, "error": err.Error()})
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		recordProxyResult(oc, r, http.StatusBadGateway, time.Since(start))
		return
	}
	defer resp.Body.Close()

	h := http.Header{}
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	if resp.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	writer := PrepareResponseWriter(w, resp.Status, h)
	io.Copy(writer, resp.Body)
	recordProxyResult(oc, r, resp.Status, time.Since(start))
}

func recordProxyResult(oc *config.OriginConfig, r *http.Request, status int, elapsed time.Duration) {
	httpStatus := strconv.Itoa(status)
	metrics.ProxyRequestStatus.WithLabelValues(oc.Name, "passthrough", r.Method, "passthrough", httpStatus, r.URL.Path).Inc()
	metrics.ProxyRequestDuration.WithLabelValues(oc.Name, "passthrough", r.Method, "passthrough", httpStatus, r.URL.Path).Observe(elapsed.Seconds())
}
