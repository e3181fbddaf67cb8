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
	"net/http"
	"strconv"
	"time"

	"github.com/cdnforge/edgevideo/internal/chunkstore"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	"github.com/cdnforge/edgevideo/internal/proxy/origins"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/metrics"
	"github.com/cdnforge/edgevideo/internal/util/reqctx"
)

// OrchestratorFor resolves the Orchestrator backing a named cache, lazily
// constructing and caching one per cache name so the singleflight group and
// waiter counters a cache's Orchestrator carries survive across requests.
type OrchestratorFor func(cacheName string) (*Orchestrator, error)

// Handler is the top-level HTTP entry point for video requests: it runs the
// full C3 -> C6 -> C2 -> C5 -> C1/C7 pipeline described in section 4.
type Handler struct {
	Config      func() *config.EdgeConfig
	Fetcher     *fetch.Fetcher
	Dispatcher  *Dispatcher
	Orchestrator OrchestratorFor
}

// NewHandler returns a Handler. cfg is invoked on every request so a live
// config reload (C9) takes effect without restarting the listener.
func NewHandler(cfg func() *config.EdgeConfig, f *fetch.Fetcher, d *Dispatcher, of OrchestratorFor) *Handler {
	return &Handler{Config: cfg, Fetcher: f, Dispatcher: d, Orchestrator: of}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config()
	start := time.Now()

	maxBreadcrumbs := 0
	if cfg.Logging != nil && cfg.Logging.Breadcrumbs.Enabled {
		maxBreadcrumbs = cfg.Logging.Breadcrumbs.MaxItems
	}
	state := reqctx.New(maxBreadcrumbs)
	r = r.WithContext(reqctx.WithState(r.Context(), state))
	defer state.Clear()

	path := r.URL.Path
	state.Breadcrumb("context", "request received")

	if IsPassthrough(cfg, path) {
		oc, groups, err := origins.Match(cfg, path)
		if err != nil {
			h.writeError(w, r, nil, start, NewError(KindResolutionError, "no origin matches "+path, err))
			return
		}
		state.Breadcrumb("dispatch", "passthrough")
		Passthrough(w, r, h.Fetcher, oc, groups)
		return
	}

	oc, groups, err := origins.Match(cfg, path)
	if err != nil {
		h.writeError(w, r, nil, start, NewError(KindResolutionError, "no origin matches "+path, err))
		return
	}
	state.Breadcrumb("resolve", "matched origin "+oc.Name)

	t := ParseTransformOptions(r.URL.Query()).ApplyOriginDefaults(oc.TransformOptions)
	cacheKey := oc.CacheKeyPrefix + BuildCacheKey(path, t)

	orch, err := h.Orchestrator(oc.CacheName)
	if err != nil {
		h.writeError(w, r, oc, start, NewError(KindConfigError, "cache not available", err))
		return
	}

	version := ReadVersion(orch.Cache, cacheKey)

	producer := func() (*ProducerResult, error) {
		state.Breadcrumb("dispatch", "invoking transformation dispatcher")
		return h.Dispatcher.Dispatch(r, cfg, path, t, version)
	}

	res, err := orch.WithCaching(r, oc, cacheKey, producer)
	if err != nil {
		h.writeError(w, r, oc, start, err)
		return
	}

	WriteResult(w, res, h.diagnosticHeaders(cfg, oc, res, state, start))
	h.record(oc, r, res.Status, start, cacheStatusFromBreadcrumbs(state))
}

// diagnosticHeaders builds the introspective X-Origin-*/X-Source-*/
// X-Video-Chunked/X-Total-Processing-Time/X-Breadcrumb-Count headers, gated
// behind cfg.Debug since they expose internal resolution/timing detail no
// ordinary client needs. Fallback/pattern-failover headers are not built
// here -- those come from res.ExtraHeaders, set by the producer that
// actually observed the event, and flow through unconditionally.
func (h *Handler) diagnosticHeaders(cfg *config.EdgeConfig, oc *config.OriginConfig, res *chunkstore.Result, state *reqctx.State, start time.Time) http.Header {
	out := http.Header{}
	for k, v := range res.ExtraHeaders {
		out[k] = v
	}
	if !cfg.Debug {
		return out
	}
	out.Set("X-Origin-Name", oc.Name)
	out.Set("X-Origin-Matcher", oc.Matcher)
	if res.Metadata.SourceType != "" {
		out.Set("X-Source-Type", res.Metadata.SourceType)
	}
	if res.Metadata.SourcePath != "" {
		out.Set("X-Source-Path", res.Metadata.SourcePath)
	}
	out.Set("X-Video-Chunked", strconv.FormatBool(res.Metadata.IsChunked))
	out.Set("X-Total-Processing-Time", time.Since(start).String())
	out.Set("X-Breadcrumb-Count", strconv.Itoa(len(state.Breadcrumbs())))
	return out
}

// cacheStatusFromBreadcrumbs reports the "cache" stage's last recorded
// breadcrumb message (hit/miss/bypassed) for the proxy metrics' cache_status
// label, rather than guessing from the response status code -- a 206 occurs
// on both a satisfied range hit and a freshly dispatched miss.
func cacheStatusFromBreadcrumbs(state *reqctx.State) string {
	status := "miss"
	for _, b := range state.Breadcrumbs() {
		if b.Stage == "cache" {
			status = b.Message
		}
	}
	return status
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, oc *config.OriginConfig, start time.Time, err error) {
	kind := KindInternalError
	var size int64
	if e, ok := err.(*Error); ok {
		kind = e.Kind
		size = e.Size
	}
	if kind == KindClientDisconnect {
		if oc != nil {
			h.record(oc, r, 0, start, "aborted")
		}
		return
	}
	log.Error("request failed", log.Pairs{"path": r.URL.Path, "error": err.Error()})
	status := kind.HTTPStatus()
	if kind == KindRangeUnsatisfiable && size > 0 {
		RespondRangeNotSatisfiable(w, size)
	} else {
		http.Error(w, http.StatusText(status), status)
	}
	if oc != nil {
		h.record(oc, r, status, start, "error")
	}
}

func (h *Handler) record(oc *config.OriginConfig, r *http.Request, status int, start time.Time, cacheStatus string) {
	if oc == nil {
		return
	}
	httpStatus := strconv.Itoa(status)
	metrics.ProxyRequestStatus.WithLabelValues(oc.Name, "video", r.Method, cacheStatus, httpStatus, r.URL.Path).Inc()
	metrics.ProxyRequestDuration.WithLabelValues(oc.Name, "video", r.Method, cacheStatus, httpStatus, r.URL.Path).Observe(time.Since(start).Seconds())
}
