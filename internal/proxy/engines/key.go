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

// Package engines implements the cache orchestrator (C2), the
// transformation dispatcher (C5), and the cache key/versioning logic (C6)
// that sit between the HTTP handler and the KV chunk store.
package engines

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TransformOptions are the request-derived (or origin-overlaid) knobs that
// participate in the cache key (§4.6). Dimensions are rounded to the
// nearest 10 before they ever reach a key.
type TransformOptions struct {
	Mode        string
	Derivative  string
	ImWidth     int
	ImHeight    int
	Width       int
	Height      int
	Quality     string
	Compression string
	Format      string
}

const defaultMode = "video"

// roundToNearest10 implements the dimension-bucketing rule so that
// near-identical responsive requests collapse onto the same cache entry.
func roundToNearest10(n int) int {
	if n <= 0 {
		return 0
	}
	return ((n + 5) / 10) * 10
}

// ApplyOriginDefaults overlays o's configured transform_options onto any
// field the request didn't set explicitly. Must run before BuildCacheKey
// so the write path (producer call) and read path (lookup) key the same
// artifact identically.
func (t TransformOptions) ApplyOriginDefaults(defaults map[string]string) TransformOptions {
	if t.Mode == "" {
		t.Mode = defaults["mode"]
	}
	if t.Mode == "" {
		t.Mode = defaultMode
	}
	if t.Quality == "" {
		t.Quality = defaults["quality"]
	}
	if t.Compression == "" {
		t.Compression = defaults["compression"]
	}
	if t.Format == "" {
		t.Format = defaults["format"]
	}
	return t
}

// BuildCacheKey computes the canonical cache key grammar from §4.6:
// video:<source_path> followed by the active dimension on precedence
// (responsive hints > derivative > explicit width/height), plus
// quality/compression/format/mode when non-default.
func BuildCacheKey(sourcePath string, t TransformOptions) string {
	var b strings.Builder
	b.WriteString("video:")
	b.WriteString(sourcePath)

	switch {
	case t.ImWidth > 0 || t.ImHeight > 0:
		if t.ImWidth > 0 {
			fmt.Fprintf(&b, ":imwidth=%d", roundToNearest10(t.ImWidth))
		}
		if t.ImHeight > 0 {
			fmt.Fprintf(&b, ":imheight=%d", roundToNearest10(t.ImHeight))
		}
	case t.Derivative != "":
		fmt.Fprintf(&b, ":derivative=%s", t.Derivative)
	default:
		if t.Width > 0 {
			fmt.Fprintf(&b, ":w=%d", roundToNearest10(t.Width))
		}
		if t.Height > 0 {
			fmt.Fprintf(&b, ":h=%d", roundToNearest10(t.Height))
		}
	}

	if t.Quality != "" {
		fmt.Fprintf(&b, ":q=%s", t.Quality)
	}
	if t.Compression != "" {
		fmt.Fprintf(&b, ":c=%s", t.Compression)
	}
	if t.Format != "" {
		fmt.Fprintf(&b, ":f=%s", t.Format)
	}
	if t.Mode != "" && t.Mode != defaultMode {
		fmt.Fprintf(&b, ":mode=%s", t.Mode)
	}
	return b.String()
}

// ParseTransformOptions extracts TransformOptions from a request's query
// string. Unrecognized or malformed numeric values are left at zero rather
// than rejecting the request outright; an origin's matcher decides whether
// a path is served at all, not the transform knobs riding along with it.
func ParseTransformOptions(q url.Values) TransformOptions {
	var t TransformOptions
	t.Mode = q.Get("mode")
	t.Derivative = q.Get("derivative")
	t.Quality = q.Get("quality")
	t.Compression = q.Get("compression")
	t.Format = q.Get("format")
	t.ImWidth = atoiOrZero(q.Get("imwidth"))
	t.ImHeight = atoiOrZero(q.Get("imheight"))
	t.Width = atoiOrZero(q.Get("width"))
	t.Height = atoiOrZero(q.Get("height"))
	return t
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FallbackKey derives the distinct key used for cached fallback
// (untransformed) content, so it never collides with a transformed
// artifact under the same source path (§3 invariants).
func FallbackKey(sourcePath string) string {
	return "video:fallback:" + sourcePath
}

// versionKeyPrefix namespaces the version counter away from artifact keys.
const versionKeyPrefix = "version:"

// VersionKey returns the KV key under which a cache key's version counter
// is stored.
func VersionKey(cacheKey string) string {
	return versionKeyPrefix + cacheKey
}

// ParseVersion decodes a stored version counter value; a missing or
// unparseable value is treated as version 1 (the implicit initial version).
func ParseVersion(raw []byte) int {
	if len(raw) == 0 {
		return 1
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// FormatVersion encodes a version counter value for storage.
func FormatVersion(v int) []byte {
	return []byte(strconv.Itoa(v))
}
