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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cdnforge/edgevideo/internal/cache/memory"
	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/model"
	"github.com/cdnforge/edgevideo/internal/util/reqctx"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *config.OriginConfig) {
	t.Helper()
	cc := config.NewCachingConfig()
	cc.Name = "default"
	m := memory.New(cc)
	if err := m.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	oc := config.NewOriginConfig("test")
	return NewOrchestrator(m, cc), oc
}

func newTestRequest(t *testing.T) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/video.mp4", nil)
	state := reqctx.New(10)
	return r.WithContext(reqctx.WithState(r.Context(), state))
}

func TestWithCachingMissThenHit(t *testing.T) {
	o, oc := newTestOrchestrator(t)
	r := newTestRequest(t)

	var calls int32
	producer := func() (*ProducerResult, error) {
		atomic.AddInt32(&calls, 1)
		return &ProducerResult{
			Body:        []byte("hello world"),
			Status:      200,
			ContentType: "video/mp4",
			Metadata:    model.ArtifactMetadata{SourcePath: "video.mp4", ContentType: "video/mp4"},
		}, nil
	}

	res, err := o.WithCaching(r, oc, "video:video.mp4", producer)
	if err != nil {
		t.Fatalf("with_caching: %v", err)
	}
	if res.Status != 200 {
		t.Fatalf("status = %d, want 200", res.Status)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "hello world" {
		t.Fatalf("body = %q", body)
	}

	state := reqctx.FromContext(r.Context())
	state.Wait()

	res2, err := o.Store.Get("video:video.mp4", nil)
	if err != nil {
		t.Fatalf("expected write-back to have populated the store: %v", err)
	}
	body2, _ := io.ReadAll(res2.Body)
	if string(body2) != "hello world" {
		t.Fatalf("stored body = %q", body2)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}
}

func TestWithCachingBypassNeverWrites(t *testing.T) {
	o, oc := newTestOrchestrator(t)
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/video.mp4?nocache=1", nil)
	state := reqctx.New(10)
	r = r.WithContext(reqctx.WithState(r.Context(), state))

	producer := func() (*ProducerResult, error) {
		return &ProducerResult{Body: []byte("x"), Status: 200, ContentType: "video/mp4"}, nil
	}

	if _, err := o.WithCaching(r, oc, "video:video.mp4", producer); err != nil {
		t.Fatalf("with_caching: %v", err)
	}
	state.Wait()

	if _, err := o.Store.Get("video:video.mp4", nil); err == nil {
		t.Fatalf("expected no cache entry for a bypassed request")
	}
}

func TestWithCachingProducerErrorNotCached(t *testing.T) {
	o, oc := newTestOrchestrator(t)
	r := newTestRequest(t)

	wantErr := errors.New("origin unavailable")
	producer := func() (*ProducerResult, error) {
		return nil, wantErr
	}

	_, err := o.WithCaching(r, oc, "video:video.mp4", producer)
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	if _, err := o.Store.Get("video:video.mp4", nil); err == nil {
		t.Fatalf("expected no cache entry after producer failure")
	}
}

func TestWithCachingNonCacheableStatusNotWritten(t *testing.T) {
	o, oc := newTestOrchestrator(t)
	r := newTestRequest(t)

	producer := func() (*ProducerResult, error) {
		return &ProducerResult{Body: []byte("nope"), Status: 404, ContentType: "video/mp4"}, nil
	}

	res, err := o.WithCaching(r, oc, "video:video.mp4", producer)
	if err != nil {
		t.Fatalf("with_caching: %v", err)
	}
	if res.Status != 404 {
		t.Fatalf("status = %d, want 404", res.Status)
	}
	reqctx.FromContext(r.Context()).Wait()

	if _, err := o.Store.Get("video:video.mp4", nil); err == nil {
		t.Fatalf("expected no cache entry for a 404 response")
	}
}

func TestBypassedDetectsNonGetMethod(t *testing.T) {
	cc := config.NewCachingConfig()
	r := httptest.NewRequest(http.MethodPost, "http://edge.example/x", nil)
	if !Bypassed(r, cc) {
		t.Fatalf("expected POST to be treated as bypassed")
	}
}

func TestBypassedDetectsCacheControl(t *testing.T) {
	cc := config.NewCachingConfig()
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/x", nil)
	r.Header.Set("Cache-Control", "no-cache")
	if !Bypassed(r, cc) {
		t.Fatalf("expected Cache-Control: no-cache to be treated as bypassed")
	}
}

func TestBypassedAllowsPlainGet(t *testing.T) {
	cc := config.NewCachingConfig()
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/x", nil)
	if Bypassed(r, cc) {
		t.Fatalf("expected a plain GET not to be bypassed")
	}
}
