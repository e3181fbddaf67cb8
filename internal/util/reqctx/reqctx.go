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

// Package reqctx carries the per-request correlation ID, breadcrumb trail
// and deferred-work handle through a request's lifetime (§4.8). It is
// attached once, by the video handler (engines.Handler), and threaded via
// context.Context from there.
package reqctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxStateType struct{}

var stateKey = &ctxStateType{}

// Breadcrumb is a single timestamped waypoint recorded as the request moves
// through the pipeline (resolve, cache lookup, dispatch, fetch, ...).
type Breadcrumb struct {
	At      time.Time
	Stage   string
	Message string
}

// State is the per-request bundle threaded through context.Context. It is
// not safe for use after the request's deferred work has finished and
// Clear has been called.
type State struct {
	mtx sync.Mutex

	CorrelationID string
	StartTime     time.Time

	maxBreadcrumbs int
	breadcrumbs    []Breadcrumb

	timings map[string]time.Duration

	wg      sync.WaitGroup
	cleared bool
}

// New creates request state with a fresh correlation ID and the given
// breadcrumb cap (0 disables breadcrumb recording entirely).
func New(maxBreadcrumbs int) *State {
	return &State{
		CorrelationID:  uuid.NewString(),
		StartTime:      time.Now(),
		maxBreadcrumbs: maxBreadcrumbs,
		timings:        make(map[string]time.Duration),
	}
}

// WithState attaches State to ctx.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

// FromContext retrieves the State attached to ctx, or nil if none is set.
func FromContext(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey).(*State)
	return s
}

// Breadcrumb appends a waypoint to the bounded trail. Once the cap is
// reached, the oldest entry is dropped to make room (a ring buffer, not a
// hard stop), so the trail always reflects the most recent activity.
func (s *State) Breadcrumb(stage, message string) {
	if s == nil || s.maxBreadcrumbs <= 0 {
		return
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if len(s.breadcrumbs) >= s.maxBreadcrumbs {
		s.breadcrumbs = s.breadcrumbs[1:]
	}
	s.breadcrumbs = append(s.breadcrumbs, Breadcrumb{At: time.Now(), Stage: stage, Message: message})
}

// Breadcrumbs returns a copy of the recorded trail.
func (s *State) Breadcrumbs() []Breadcrumb {
	if s == nil {
		return nil
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]Breadcrumb, len(s.breadcrumbs))
	copy(out, s.breadcrumbs)
	return out
}

// RecordTiming accumulates elapsed time spent in a named component
// (e.g. "cache", "origin_resolve", "dispatch") for later logging/metrics.
func (s *State) RecordTiming(component string, d time.Duration) {
	if s == nil {
		return
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.timings[component] += d
}

// Timings returns a copy of the accumulated per-component durations.
func (s *State) Timings() map[string]time.Duration {
	if s == nil {
		return nil
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make(map[string]time.Duration, len(s.timings))
	for k, v := range s.timings {
		out[k] = v
	}
	return out
}

// Spawn runs fn in its own goroutine, scoped to the request's deferred-work
// handle, for fire-and-forget work that must not block the response being
// written (e.g. the write-back of a freshly-fetched artifact into the KV
// store). Wait blocks until every spawned fn has
// returned, so a graceful shutdown or a test can drain them deterministically.
func (s *State) Spawn(fn func()) {
	if s == nil {
		go fn()
		return
	}
	s.mtx.Lock()
	if s.cleared {
		s.mtx.Unlock()
		return
	}
	s.wg.Add(1)
	s.mtx.Unlock()
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until all work spawned via Spawn has completed.
func (s *State) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Clear releases the request state. Called on every exit path (including
// panics, via defer) so a slow deferred write-back can't be mistaken for a
// live request by anything inspecting State after the handler has returned.
func (s *State) Clear() {
	if s == nil {
		return
	}
	s.mtx.Lock()
	s.cleared = true
	s.mtx.Unlock()
}
