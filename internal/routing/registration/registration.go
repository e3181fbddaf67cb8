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

// Package registration builds the HTTP router: the admin config endpoint,
// the ping/health endpoint, and the catch-all video-serving handler. Unlike
// the origin-type-keyed client registration this package once held, origins
// here are resolved per request via regexp matcher (C3), so there is no
// fixed set of routes to enumerate at startup beyond the two admin paths.
package registration

import (
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/cdnforge/edgevideo/internal/cache/registration"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/engines"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/middleware"
)

// Router is the process's live HTTP router, rebuilt by RegisterRoutes.
var Router = mux.NewRouter()

var (
	orchestratorsMtx sync.Mutex
	orchestrators    = map[string]*engines.Orchestrator{}
)

// orchestratorFor lazily builds (and memoizes) the Orchestrator for a named
// cache. Reusing one Orchestrator per cache name across requests is what
// lets its singleflight group and bounded-waiter counters actually
// coalesce concurrent misses (§4.2 step 4); a fresh Orchestrator per
// request would never see more than one caller.
func orchestratorFor(cacheName string) (*engines.Orchestrator, error) {
	orchestratorsMtx.Lock()
	defer orchestratorsMtx.Unlock()

	if o, ok := orchestrators[cacheName]; ok {
		return o, nil
	}
	c, err := registration.GetCache(cacheName)
	if err != nil {
		return nil, err
	}
	cc := config.Get().Caches[cacheName]
	if cc == nil {
		cc = config.NewCachingConfig()
	}
	o := engines.NewOrchestrator(c, cc)
	orchestrators[cacheName] = o
	return o, nil
}

// ResetOrchestrators drops every memoized Orchestrator, so a config reload
// that swaps a cache's backend (§4.9) doesn't leave a stale Orchestrator
// coalescing against a closed cache.Cache.
func ResetOrchestrators() {
	orchestratorsMtx.Lock()
	defer orchestratorsMtx.Unlock()
	orchestrators = map[string]*engines.Orchestrator{}
}

// RegisterRoutes builds the router for the current configuration: the admin
// config endpoint, the ping endpoint, and the video handler covering
// everything else.
func RegisterRoutes(fetcher *fetch.Fetcher) error {
	cfg := config.Get()

	r := mux.NewRouter()
	r.Use(middleware.Trace())

	r.HandleFunc(cfg.Main.PingHandlerPath, pingHandler).Methods(http.MethodGet)
	r.HandleFunc(cfg.Main.ConfigHandlerPath, configHandler).Methods(http.MethodGet, http.MethodPost)

	dispatcher := engines.NewDispatcher(fetcher, orchestratorFor)
	h := engines.NewHandler(config.Get, fetcher, dispatcher, orchestratorFor)
	r.PathPrefix("/").Handler(h).Methods(http.MethodGet, http.MethodHead)

	Router = r
	log.Info("routes registered", log.Pairs{"pingPath": cfg.Main.PingHandlerPath, "configPath": cfg.Main.ConfigHandlerPath})
	return nil
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "pong")
}

// configHandler serves (GET) and accepts (POST) the admin configuration
// snapshot (C9): a GET returns the currently active configuration; a POST
// validates and, on success, atomically publishes a new one.
func configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		b, err := config.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "error reading request body", http.StatusBadRequest)
		return
	}
	if err := config.ApplySnapshot(body); err != nil {
		log.Warn("rejected configuration update", log.Pairs{"error": err.Error()})
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ResetOrchestrators()
	log.Info("configuration updated", log.Pairs{"version": config.Get().Version})
	w.WriteHeader(http.StatusOK)
}
