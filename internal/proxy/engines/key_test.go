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

import "testing"

func TestBuildCacheKeyResponsiveHintsTakePrecedence(t *testing.T) {
	got := BuildCacheKey("videos/a.mp4", TransformOptions{
		ImWidth: 324, Derivative: "mobile", Width: 999,
	})
	want := "video:videos/a.mp4:imwidth=320"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCacheKeyDerivative(t *testing.T) {
	got := BuildCacheKey("videos/a.mp4", TransformOptions{Derivative: "mobile"})
	want := "video:videos/a.mp4:derivative=mobile"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCacheKeyExplicitDimensionsRounded(t *testing.T) {
	got := BuildCacheKey("videos/a.mp4", TransformOptions{Width: 317, Height: 175})
	want := "video:videos/a.mp4:w=320:h=180"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCacheKeyFullSuffixes(t *testing.T) {
	got := BuildCacheKey("videos/a.mp4", TransformOptions{
		Width: 320, Quality: "high", Compression: "auto", Format: "mp4", Mode: "thumbnail",
	})
	want := "video:videos/a.mp4:w=320:q=high:c=auto:f=mp4:mode=thumbnail"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCacheKeyDefaultModeOmitted(t *testing.T) {
	got := BuildCacheKey("videos/a.mp4", TransformOptions{Width: 320, Mode: "video"})
	want := "video:videos/a.mp4:w=320"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyOriginDefaultsOnlyFillsBlankFields(t *testing.T) {
	t0 := TransformOptions{Quality: "low"}
	got := t0.ApplyOriginDefaults(map[string]string{"quality": "high", "compression": "auto", "format": "mp4"})
	if got.Quality != "low" {
		t.Fatalf("explicit quality overridden: %q", got.Quality)
	}
	if got.Compression != "auto" || got.Format != "mp4" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.Mode != defaultMode {
		t.Fatalf("mode = %q, want default", got.Mode)
	}
}

func TestVersionKeyRoundTrip(t *testing.T) {
	key := BuildCacheKey("videos/a.mp4", TransformOptions{Width: 320})
	vk := VersionKey(key)
	if vk != "version:"+key {
		t.Fatalf("VersionKey = %q", vk)
	}
	if ParseVersion(nil) != 1 {
		t.Fatalf("ParseVersion(nil) should default to 1")
	}
	if ParseVersion(FormatVersion(7)) != 7 {
		t.Fatalf("round trip through FormatVersion/ParseVersion failed")
	}
}

func TestFallbackKeyDistinctFromArtifactKey(t *testing.T) {
	sourcePath := "videos/a.mp4"
	if FallbackKey(sourcePath) == BuildCacheKey(sourcePath, TransformOptions{}) {
		t.Fatalf("fallback key must never collide with a transformed artifact key")
	}
}
