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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cdnforge/edgevideo/internal/config"
	"github.com/cdnforge/edgevideo/internal/proxy/fetch"
	"github.com/cdnforge/edgevideo/internal/proxy/model"
	"github.com/cdnforge/edgevideo/internal/proxy/origins"
	"github.com/cdnforge/edgevideo/internal/util/log"
	"github.com/cdnforge/edgevideo/internal/util/metrics"
)

// Dispatcher implements the transformation dispatcher (C5): compose and
// execute the transformation call against the primary origin, walk
// alternative matching origins on failure, and finally fall back to the
// untransformed original.
type Dispatcher struct {
	Fetcher    *fetch.Fetcher
	HTTPClient *http.Client

	// Orchestrator resolves the Orchestrator backing a named cache, so the
	// final fallback step can check for a previously cached fallback
	// artifact before re-fetching the original (§4.5 step 5, §8 scenario 4).
	Orchestrator OrchestratorFor
}

// NewDispatcher returns a Dispatcher that fetches originals through f and
// checks cached fallbacks through of.
func NewDispatcher(f *fetch.Fetcher, of OrchestratorFor) *Dispatcher {
	return &Dispatcher{Fetcher: f, HTTPClient: http.DefaultClient, Orchestrator: of}
}

// primarySource picks the source whose path both the transform URL grammar
// and a passthrough fetch use: the first object_store source, else the first
// remote source. Fallback sources are never picked.
func primarySource(sources []origins.ResolvedSource) (origins.ResolvedSource, bool) {
	nonFallback := origins.ByType(sources, config.SourceObjectStore)
	nonFallback = append(nonFallback, origins.ByType(sources, config.SourceRemote)...)
	if len(nonFallback) == 0 {
		return origins.ResolvedSource{}, false
	}
	return nonFallback[0], true
}

// IsPassthrough reports whether path's extension is in the configured
// passthrough whitelist (§4.5 Passthrough): such requests skip C5 entirely.
func IsPassthrough(cfg *config.EdgeConfig, path string) bool {
	if cfg.Video == nil || !cfg.Video.Passthrough.Enabled {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(extOf(path)), ".")
	for _, w := range cfg.Video.Passthrough.WhitelistedFormats {
		if ext == strings.ToLower(w) {
			return true
		}
	}
	return false
}

func extOf(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return ""
	}
	return path[i+1:]
}

// kvSegment renders the comma-separated key=value option list the C5 URL
// grammar embeds, following the same active-option precedence as
// BuildCacheKey (responsive hints > derivative > explicit dimensions).
func kvSegment(t TransformOptions) string {
	var parts []string
	switch {
	case t.ImWidth > 0 || t.ImHeight > 0:
		if t.ImWidth > 0 {
			parts = append(parts, fmt.Sprintf("imwidth=%d", roundToNearest10(t.ImWidth)))
		}
		if t.ImHeight > 0 {
			parts = append(parts, fmt.Sprintf("imheight=%d", roundToNearest10(t.ImHeight)))
		}
	case t.Derivative != "":
		parts = append(parts, "derivative="+t.Derivative)
	default:
		if t.Width > 0 {
			parts = append(parts, fmt.Sprintf("w=%d", roundToNearest10(t.Width)))
		}
		if t.Height > 0 {
			parts = append(parts, fmt.Sprintf("h=%d", roundToNearest10(t.Height)))
		}
	}
	if t.Quality != "" {
		parts = append(parts, "q="+t.Quality)
	}
	if t.Compression != "" {
		parts = append(parts, "c="+t.Compression)
	}
	if t.Format != "" {
		parts = append(parts, "f="+t.Format)
	}
	if t.Mode != "" && t.Mode != defaultMode {
		parts = append(parts, "mode="+t.Mode)
	}
	return strings.Join(parts, ",")
}

// sourceURL is the "resolved_source_url" segment of the transform URL
// grammar: the absolute location of the bytes being transformed.
func sourceURL(src origins.ResolvedSource) string {
	if src.Source.Type == config.SourceObjectStore {
		return src.Source.BindingName + "/" + strings.TrimPrefix(src.Path, "/")
	}
	return src.Source.BaseURL + src.Path
}

func transformURL(serviceBase string, t TransformOptions, src origins.ResolvedSource, version int) string {
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(serviceBase, "/"), kvSegment(t), sourceURL(src))
	if version > 1 {
		url += "?v=" + strconv.Itoa(version)
	}
	return url
}

// remapParams strips the parameter names a 4xx transform response names
// via cfg.Video.RemapOnStatus. It reports whether any parameter was
// actually cleared, since the dispatcher retries only on a real rewrite.
func remapParams(cfg *config.EdgeConfig, status int, t TransformOptions) (TransformOptions, bool) {
	names, ok := cfg.Video.RemapOnStatus[strconv.Itoa(status)]
	if !ok {
		return t, false
	}
	changed := false
	for _, n := range names {
		switch n {
		case "quality":
			if t.Quality != "" {
				t.Quality, changed = "", true
			}
		case "compression":
			if t.Compression != "" {
				t.Compression, changed = "", true
			}
		case "format":
			if t.Format != "" {
				t.Format, changed = "", true
			}
		case "imwidth":
			if t.ImWidth != 0 {
				t.ImWidth, changed = 0, true
			}
		case "imheight":
			if t.ImHeight != 0 {
				t.ImHeight, changed = 0, true
			}
		case "width":
			if t.Width != 0 {
				t.Width, changed = 0, true
			}
		case "height":
			if t.Height != 0 {
				t.Height, changed = 0, true
			}
		}
	}
	return t, changed
}

// Dispatch executes the C5 algorithm for a single request: resolve origins,
// call the transformer against each matching origin in turn, and fall back
// to the untransformed original if every call fails.
func (d *Dispatcher) Dispatch(r *http.Request, cfg *config.EdgeConfig, path string, t TransformOptions, version int) (*ProducerResult, error) {
	chain := origins.MatchAll(cfg, path)
	if len(chain) == 0 {
		return nil, NewError(KindResolutionError, "no origin matches "+path, nil)
	}

	var lastErr error
	var lastStatus int
	for idx, m := range chain {
		sources := origins.ResolveSources(m.Origin, m.Groups)
		src, ok := primarySource(sources)
		if !ok {
			lastErr = NewError(KindResolutionError, "origin "+m.Origin.Name+" has no usable source", nil)
			continue
		}

		opts := t.ApplyOriginDefaults(m.Origin.TransformOptions)
		pr, status, err := d.dispatchOne(r, cfg, opts, src, version)
		lastStatus = status
		if err == nil {
			pr.Metadata.SourcePath = src.Path
			pr.Metadata.SourceType = string(src.Source.Type)
			if pr.ExtraHeaders == nil {
				pr.ExtraHeaders = http.Header{}
			}
			if idx > 0 {
				pr.ExtraHeaders.Set("X-Pattern-Fallback-Index", strconv.Itoa(idx))
				pr.ExtraHeaders.Set("X-Pattern-Fallback-Total", strconv.Itoa(len(chain)))
				pr.ExtraHeaders.Set("X-Pattern-Fallback-Applied", "true")
			}
			return pr, nil
		}

		lastErr = err
		metrics.DispatchFailovers.WithLabelValues(m.Origin.Name, classifyFailoverReason(err)).Inc()
		log.Debug("transform dispatch failed, advancing to next origin", log.Pairs{"origin": m.Origin.Name, "error": err.Error()})
	}

	return d.fallback(r, cfg, chain[0].Origin, chain[0].Groups, lastErr, lastStatus)
}

// dispatchOne performs the single-origin call of §4.5 steps 2-3, including
// the bounded one-time retry after a parameter remap. The returned status is
// the raw HTTP status of the last transform attempt, carried through so a
// final fallback can report X-Original-Status even though the error itself
// has already been classified into a Kind.
func (d *Dispatcher) dispatchOne(r *http.Request, cfg *config.EdgeConfig, t TransformOptions, src origins.ResolvedSource, version int) (*ProducerResult, int, error) {
	url := transformURL(cfg.Video.TransformServiceBase, t, src, version)

	pr, status, err := d.callTransformer(r, url)
	if err == nil {
		return pr, status, nil
	}
	if status < 400 || status >= 500 {
		return nil, status, err
	}

	remapped, changed := remapParams(cfg, status, t)
	if !changed {
		return nil, status, err
	}

	retryURL := transformURL(cfg.Video.TransformServiceBase, remapped, src, version)
	pr, retryStatus, err := d.callTransformer(r, retryURL)
	return pr, retryStatus, err
}

func (d *Dispatcher) callTransformer(r *http.Request, url string) (*ProducerResult, int, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, NewError(KindInternalError, "building transform request", err)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			return nil, 0, NewError(KindClientDisconnect, "client disconnected during transform call", err)
		}
		return nil, 0, NewError(KindTransformerTransient, "transform call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, NewError(KindTransformerTransient, "reading transform response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &ProducerResult{
			Body:        body,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Metadata:    model.ArtifactMetadata{ContentType: resp.Header.Get("Content-Type")},
		}, resp.StatusCode, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, resp.StatusCode, NewError(KindTransformerPermanent, fmt.Sprintf("transform rejected with %d", resp.StatusCode), nil)
	default:
		return nil, resp.StatusCode, NewError(KindTransformerTransient, fmt.Sprintf("transform failed with %d", resp.StatusCode), nil)
	}
}

// fallback serves the untransformed original after every origin in the
// chain has failed (§4.5 step 5). It first checks for a previously cached
// fallback artifact under the dedicated fallback key, so a second identical
// request is answered without a repeat source fetch.
func (d *Dispatcher) fallback(r *http.Request, cfg *config.EdgeConfig, oc *config.OriginConfig, groups map[string]string, cause error, originalStatus int) (*ProducerResult, error) {
	sources := origins.ResolveSources(oc, groups)
	src, ok := primarySource(sources)
	if !ok {
		return nil, cause
	}

	fbKey := FallbackKey(src.Path)
	reason := classifyFailoverReason(cause)

	if oc.FallbackCacheEnabled && d.Orchestrator != nil {
		if orch, err := d.Orchestrator(oc.CacheName); err == nil {
			if res, err := orch.Store.Get(fbKey, nil); err == nil {
				body, readErr := io.ReadAll(res.Body)
				if readErr == nil {
					metrics.FallbackServed.WithLabelValues(oc.Name, "true").Inc()
					return &ProducerResult{
						Body:        body,
						Status:      res.Status,
						ContentType: res.ContentType,
						Metadata:    res.Metadata,
						IsFallback:  true,
						ExtraHeaders: http.Header{
							"X-Fallback-Applied":    []string{"true"},
							"X-Fallback-Cache-Hit":  []string{"true"},
							"X-Fallback-Reason":     []string{reason},
							"X-Original-Status":     []string{strconv.Itoa(originalStatus)},
						},
					}, nil
				}
			}
		}
	}

	resp, err := d.Fetcher.Fetch(r.Context(), src, r.Header.Get("Range"))
	if err != nil {
		return nil, NewError(KindSourceNotFound, "all origins failed and fallback fetch also failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindInternalError, "reading fallback body", err)
	}

	metrics.FallbackServed.WithLabelValues(oc.Name, "false").Inc()

	return &ProducerResult{
		Body:        body,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Metadata:    model.ArtifactMetadata{ContentType: resp.ContentType, SourcePath: src.Path, SourceType: string(src.Source.Type)},
		IsFallback:  true,
		FallbackKey: fbKey,
		ExtraHeaders: http.Header{
			"X-Fallback-Applied":   []string{"true"},
			"X-Fallback-Cache-Hit": []string{"false"},
			"X-Fallback-Reason":    []string{reason},
			"X-Original-Status":    []string{strconv.Itoa(originalStatus)},
		},
	}, nil
}

func classifyFailoverReason(err error) string {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	}
	if e == nil {
		return "unknown"
	}
	return string(e.Kind)
}
