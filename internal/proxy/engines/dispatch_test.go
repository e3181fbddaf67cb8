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
	"net/http/httptest"
	"testing"

	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	"github.com/cdnforge/edgevideo/internal/proxy/origins"
)

func testResolvedSource() origins.ResolvedSource {
	return origins.ResolvedSource{
		Source: &config.SourceConfig{Type: config.SourceRemote, BaseURL: "http://origin.example"},
		Path:   "/path/a.mp4",
	}
}

func TestKVSegmentPrecedenceAndOrdering(t *testing.T) {
	got := kvSegment(TransformOptions{ImWidth: 324, Quality: "high", Format: "mp4"})
	want := "imwidth=320,q=high,f=mp4"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTransformURLGrammar(t *testing.T) {
	src := testResolvedSource()
	got := transformURL("http://transformer.internal/v1/transform/", TransformOptions{Width: 320}, src, 1)
	want := "http://transformer.internal/v1/transform/w=320/http://origin.example/path/a.mp4"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTransformURLAppendsVersionWhenAboveOne(t *testing.T) {
	src := testResolvedSource()
	got := transformURL("http://transformer.internal/v1/transform", TransformOptions{Width: 320}, src, 3)
	if got != "http://transformer.internal/v1/transform/w=320/http://origin.example/path/a.mp4?v=3" {
		t.Fatalf("unexpected url: %q", got)
	}
}

func TestRemapParamsClearsConfiguredFields(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Video.RemapOnStatus = map[string][]string{"422": {"quality", "compression"}}

	in := TransformOptions{Quality: "high", Compression: "auto", Width: 320}
	out, changed := remapParams(cfg, 422, in)
	if !changed {
		t.Fatalf("expected a rewrite")
	}
	if out.Quality != "" || out.Compression != "" {
		t.Fatalf("fields not cleared: %+v", out)
	}
	if out.Width != 320 {
		t.Fatalf("unrelated field was touched: %+v", out)
	}
}

func TestRemapParamsNoOpWhenStatusNotConfigured(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Video.RemapOnStatus = map[string][]string{"422": {"quality"}}

	in := TransformOptions{Quality: "high"}
	_, changed := remapParams(cfg, 400, in)
	if changed {
		t.Fatalf("expected no rewrite for an unconfigured status")
	}
}

func TestIsPassthroughMatchesWhitelistedExtension(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Video.Passthrough.Enabled = true
	cfg.Video.Passthrough.WhitelistedFormats = []string{"webm"}

	if !IsPassthrough(cfg, "videos/clip.webm") {
		t.Fatalf("expected .webm to be passthrough")
	}
	if IsPassthrough(cfg, "videos/clip.mp4") {
		t.Fatalf(".mp4 should not be passthrough")
	}
}

func TestIsPassthroughDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Video.Passthrough.Enabled = false
	cfg.Video.Passthrough.WhitelistedFormats = []string{"webm"}
	if IsPassthrough(cfg, "videos/clip.webm") {
		t.Fatalf("passthrough disabled entirely should never match")
	}
}

func TestDispatchSucceedsOnPrimaryOrigin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("transformed-bytes"))
	}))
	defer ts.Close()

	cfg := config.NewConfig()
	cfg.Video.TransformServiceBase = ts.URL
	oc := cfg.Origins[0]
	oc.Matcher = "^/videos/(?P<name>.+)$"
	oc.CaptureGroupNames = []string{"name"}
	oc.Sources = []*config.SourceConfig{{Type: config.SourceRemote, BaseURL: "http://origin.example", PathTemplate: "/videos/${name}"}}
	if err := oc.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	d := NewDispatcher(fetch.New(nil), nil)
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/videos/a.mp4", nil)

	pr, err := d.Dispatch(r, cfg, "/videos/a.mp4", TransformOptions{Width: 320}, 1)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(pr.Body) != "transformed-bytes" {
		t.Fatalf("body = %q", pr.Body)
	}
	if pr.Status != 200 {
		t.Fatalf("status = %d", pr.Status)
	}
}

func TestDispatchFallsBackWhenTransformFails(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("original-bytes"))
	}))
	defer origin.Close()

	transformer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer transformer.Close()

	cfg := config.NewConfig()
	cfg.Video.TransformServiceBase = transformer.URL
	oc := cfg.Origins[0]
	oc.Matcher = "^/videos/(?P<name>.+)$"
	oc.CaptureGroupNames = []string{"name"}
	oc.Sources = []*config.SourceConfig{{Type: config.SourceRemote, BaseURL: origin.URL, PathTemplate: "/${name}"}}
	if err := oc.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	d := NewDispatcher(fetch.New(nil), nil)
	r := httptest.NewRequest(http.MethodGet, "http://edge.example/videos/a.mp4", nil)

	pr, err := d.Dispatch(r, cfg, "/videos/a.mp4", TransformOptions{Width: 320}, 1)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if string(pr.Body) != "original-bytes" {
		t.Fatalf("expected fallback to original bytes, got %q", pr.Body)
	}
	if pr.ExtraHeaders.Get("X-Fallback-Applied") != "true" {
		t.Fatalf("expected X-Fallback-Applied header")
	}
}
