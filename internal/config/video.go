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

package config

// VideoConfig groups the transformation-domain configuration: named
// derivatives, request-option defaults, and the passthrough whitelist.
type VideoConfig struct {
	Derivatives map[string]*DerivativeConfig `toml:"derivatives" json:"derivatives"`
	Defaults    TransformDefaults            `toml:"defaults" json:"defaults"`
	Passthrough PassthroughConfig            `toml:"passthrough" json:"passthrough"`

	// TransformServiceBase is the <service_base> of the C5 URL grammar:
	// <service_base>/<kv-pair-segment>/<resolved_source_url>.
	TransformServiceBase string `toml:"transform_service_base" json:"transformServiceBase"`

	// RemapOnStatus is the closed 4xx-code -> parameter-names remap table
	// (§4.5 step 3): on one of these statuses, the named options are
	// stripped from the transform URL's kv-pair segment and the call is
	// retried once.
	RemapOnStatus map[string][]string `toml:"remap_on_status" json:"remapOnStatus"`
}

// DerivativeConfig is a named preset of transform options (e.g. "mobile").
type DerivativeConfig struct {
	Width       int    `toml:"width" json:"width"`
	Height      int    `toml:"height" json:"height"`
	Fit         string `toml:"fit" json:"fit"`
	Quality     string `toml:"quality" json:"quality"`
	Compression string `toml:"compression" json:"compression"`
	Format      string `toml:"format" json:"format"`
}

// TransformDefaults is loaded and reported in the config snapshot; the
// request path does not read it (per-request options come from the query
// string and the origin's transform_options).
type TransformDefaults struct {
	Mode        string `toml:"mode" json:"mode"`
	Quality     string `toml:"quality" json:"quality"`
	Compression string `toml:"compression" json:"compression"`
	Format      string `toml:"format" json:"format"`
}

// PassthroughConfig lists containers/extensions that skip transformation entirely (§4.5).
type PassthroughConfig struct {
	Enabled            bool     `toml:"enabled" json:"enabled"`
	WhitelistedFormats []string `toml:"whitelisted_formats" json:"whitelistedFormats"`
}

// NewVideoConfig returns VideoConfig with baked-in defaults.
func NewVideoConfig() *VideoConfig {
	return &VideoConfig{
		Derivatives: map[string]*DerivativeConfig{
			"mobile":  {Width: 480, Height: 270, Fit: "contain", Quality: "low", Format: "mp4"},
			"tablet":  {Width: 960, Height: 540, Fit: "contain", Quality: "medium", Format: "mp4"},
			"desktop": {Width: 1920, Height: 1080, Fit: "contain", Quality: "high", Format: "mp4"},
		},
		Defaults: TransformDefaults{
			Mode:        "video",
			Quality:     "medium",
			Compression: "auto",
			Format:      "mp4",
		},
		Passthrough: PassthroughConfig{
			Enabled:            true,
			WhitelistedFormats: []string{"webm", "mov", "mkv"},
		},
		TransformServiceBase: "http://transformer.internal/v1/transform",
		RemapOnStatus: map[string][]string{
			"422": {"quality", "compression"},
			"400": {"imwidth", "imheight"},
		},
	}
}
