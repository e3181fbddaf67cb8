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

import (
	"regexp"
	"time"
)

// OriginConfig describes one pattern-matched origin: its ordered sources,
// TTL overrides and transform option overlay. Origins are declared as a
// TOML array of tables ([[origins]]) specifically so that declaration
// order - which the resolver depends on for first-match-plus-failover
// semantics - survives the decode.
type OriginConfig struct {
	// Name identifies the origin in logs, metrics and diagnostic headers.
	Name string `toml:"name" json:"name"`
	// IsDefault marks the origin used when no other origin matches.
	IsDefault bool `toml:"is_default" json:"isDefault"`

	// Matcher is a regular expression evaluated against the request path.
	Matcher string `toml:"matcher" json:"matcher"`
	// CaptureGroupNames aligns positionally with Matcher's capture groups.
	CaptureGroupNames []string `toml:"capture_group_names" json:"captureGroupNames"`

	// Sources is the ordered (by Priority ascending) list of retrieval targets.
	Sources []*SourceConfig `toml:"sources" json:"sources"`

	// CacheName names the CachingConfig this origin's artifacts are stored under.
	CacheName string `toml:"cache_name" json:"cacheName"`
	// CacheKeyPrefix is prepended to every cache key derived for this origin.
	CacheKeyPrefix string `toml:"cache_key_prefix" json:"cacheKeyPrefix"`

	// TTLByStatus overrides the cache-wide TTL table for this origin, keyed
	// by either an exact status code ("404") or a status class ("5xx").
	TTLByStatus map[string]int `toml:"ttl_by_status" json:"ttlByStatus"`

	// TransformOptions overlays origin-level defaults (e.g. quality,
	// compression) onto every request before the cache key is computed, so
	// write and read paths never disagree on the key (§4.6).
	TransformOptions map[string]string `toml:"transform_options" json:"transformOptions"`

	// FallbackTTLSecs is the short TTL applied to cached fallback (untransformed) content.
	FallbackTTLSecs int `toml:"fallback_ttl_secs" json:"fallbackTtlSecs"`
	// FallbackCacheEnabled controls whether a fallback response is written to KV at all.
	FallbackCacheEnabled bool `toml:"fallback_cache_enabled" json:"fallbackCacheEnabled"`

	// TimeoutSecs bounds upstream transform/fetch calls.
	TimeoutSecs int `toml:"timeout_secs" json:"timeoutSecs"`
	// MaxObjectSizeBytes is loaded and reported in the config snapshot; no
	// component compares response sizes against it.
	MaxObjectSizeBytes int `toml:"max_object_size_bytes" json:"maxObjectSizeBytes"`

	// HealthCheckUpstreamPath/Verb are loaded and reported in the config
	// snapshot; no health-check route is registered from them.
	HealthCheckUpstreamPath string `toml:"health_check_upstream_path" json:"healthCheckUpstreamPath"`
	HealthCheckVerb         string `toml:"health_check_verb" json:"healthCheckVerb"`

	// Synthesized fields, not read from TOML.
	Timeout         time.Duration  `toml:"-" json:"-"`
	compiledMatcher *regexp.Regexp `toml:"-" json:"-"`
}

// CompiledMatcher returns the origin's compiled path regexp.
func (o *OriginConfig) CompiledMatcher() *regexp.Regexp {
	return o.compiledMatcher
}

// Compile compiles and stores Matcher, so resolution can use
// CompiledMatcher(). It's called by the config loader after decode, and is
// exported so tests and programmatic config construction (outside of TOML
// loading) can do the same.
func (o *OriginConfig) Compile() error {
	return compileMatcher(o)
}

// NewOriginConfig returns an OriginConfig with baked-in defaults.
func NewOriginConfig(name string) *OriginConfig {
	return &OriginConfig{
		Name:                 name,
		CacheName:            defaultOriginCacheName,
		TTLByStatus:          map[string]int{},
		TransformOptions:     map[string]string{},
		FallbackTTLSecs:      defaultFallbackTTLSecs,
		FallbackCacheEnabled: true,
		TimeoutSecs:          defaultOriginTimeoutSecs,
		MaxObjectSizeBytes:   defaultMaxObjectSizeBytes,
	}
}

// Copy returns a deep copy of the OriginConfig, used when building an
// updated configuration snapshot.
func (o *OriginConfig) Copy() *OriginConfig {
	n := *o
	n.CaptureGroupNames = append([]string(nil), o.CaptureGroupNames...)
	n.Sources = make([]*SourceConfig, len(o.Sources))
	for i, s := range o.Sources {
		n.Sources[i] = s.Copy()
	}
	n.TTLByStatus = make(map[string]int, len(o.TTLByStatus))
	for k, v := range o.TTLByStatus {
		n.TTLByStatus[k] = v
	}
	n.TransformOptions = make(map[string]string, len(o.TransformOptions))
	for k, v := range o.TransformOptions {
		n.TransformOptions[k] = v
	}
	return &n
}

// SourceType is the closed set of retrieval target kinds (§3 Source).
type SourceType string

const (
	// SourceObjectStore retrieves bytes from a bound object-store bucket.
	SourceObjectStore SourceType = "object_store"
	// SourceRemote retrieves bytes from an authenticated HTTP origin.
	SourceRemote SourceType = "remote"
	// SourceFallback is a Remote-shaped source used only when transforms fail.
	SourceFallback SourceType = "fallback"
)

// SourceConfig is a tagged-variant retrieval target within an origin.
type SourceConfig struct {
	Type     SourceType `toml:"type" json:"type"`
	Priority int        `toml:"priority" json:"priority"`

	// BindingName names the object-store binding (SourceObjectStore only).
	BindingName string `toml:"binding_name" json:"bindingName,omitempty"`

	// BaseURL is the upstream origin base (SourceRemote/SourceFallback only).
	BaseURL string `toml:"base_url" json:"baseUrl,omitempty"`

	// PathTemplate is expanded against capture groups to produce the final path.
	PathTemplate string `toml:"path_template" json:"pathTemplate"`

	Auth *AuthConfig `toml:"auth" json:"auth,omitempty"`
}

// Copy returns a deep copy of the SourceConfig.
func (s *SourceConfig) Copy() *SourceConfig {
	n := *s
	if s.Auth != nil {
		n.Auth = s.Auth.Copy()
	}
	return &n
}

// AuthType is the closed set of source authentication mechanisms (§3 Auth).
type AuthType string

const (
	AuthAwsSig AuthType = "aws_sig"
	AuthBearer AuthType = "bearer"
	AuthHeader AuthType = "header"
	AuthQuery  AuthType = "query"
	AuthBasic  AuthType = "basic"
)

// AuthConfig is a tagged-variant auth descriptor. All *Var fields name an
// environment variable resolved at request time; template fields may embed
// ${ENV_VAR} references expanded the same way.
type AuthConfig struct {
	Type AuthType `toml:"type" json:"type"`

	// AwsSig
	AccessKeyVar string `toml:"access_key_var" json:"accessKeyVar,omitempty"`
	SecretKeyVar string `toml:"secret_key_var" json:"secretKeyVar,omitempty"`
	Region       string `toml:"region" json:"region,omitempty"`
	Service      string `toml:"service" json:"service,omitempty"`

	// Bearer
	TokenVar string `toml:"token_var" json:"tokenVar,omitempty"`

	// Header / Query: name -> ${ENV_VAR}-style template
	Headers map[string]string `toml:"headers" json:"headers,omitempty"`
	Query   map[string]string `toml:"query" json:"query,omitempty"`

	// Basic
	UserVar string `toml:"user_var" json:"userVar,omitempty"`
	PassVar string `toml:"pass_var" json:"passVar,omitempty"`
}

// Copy returns a deep copy of the AuthConfig.
func (a *AuthConfig) Copy() *AuthConfig {
	n := *a
	if a.Headers != nil {
		n.Headers = make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			n.Headers[k] = v
		}
	}
	if a.Query != nil {
		n.Query = make(map[string]string, len(a.Query))
		for k, v := range a.Query {
			n.Query[k] = v
		}
	}
	return &n
}
