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

// Package config holds the running configuration for the edge video
// transformation service: origins, caches, TTL policy, derivatives and
// feature flags.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
)

// current holds the live, validated configuration snapshot. It is replaced
// wholesale via atomic.Pointer so that readers never observe a partially
// updated config and admin updates never require a restart.
var current atomic.Pointer[EdgeConfig]

// Flags is the set of command line flags the process was started with.
var Flags = RuntimeFlags{}

// LoaderWarnings accumulates non-fatal warnings discovered during Load,
// flushed to the logger once the logger itself is initialized.
var LoaderWarnings = make([]string, 0)

// EdgeConfig is the root configuration object.
type EdgeConfig struct {
	Main    *MainConfig              `toml:"main" json:"main"`
	Origins []*OriginConfig          `toml:"origins" json:"origins"`
	Caches  map[string]*CachingConfig `toml:"caches" json:"caches"`

	Frontend *FrontendConfig `toml:"frontend" json:"frontend"`
	Logging  *LoggingConfig  `toml:"logging" json:"logging"`
	Metrics  *MetricsConfig  `toml:"metrics" json:"metrics"`
	Tracing  *TracingConfig  `toml:"tracing" json:"tracing"`
	Video    *VideoConfig    `toml:"video" json:"video"`

	Debug bool `toml:"debug" json:"debug"`

	// Version and LastUpdated are synthesized, not read from the TOML file;
	// they're populated on every accepted load/update for the admin snapshot.
	Version     int       `toml:"-" json:"version"`
	LastUpdated time.Time `toml:"-" json:"lastUpdated"`

	activeCaches map[string]bool
}

// MainConfig is a collection of general configuration values.
type MainConfig struct {
	InstanceID        int    `toml:"instance_id" json:"instanceId"`
	ConfigHandlerPath string `toml:"config_handler_path" json:"configHandlerPath"`
	PingHandlerPath   string `toml:"ping_handler_path" json:"pingHandlerPath"`
}

// FrontendConfig configures the main HTTP listener.
type FrontendConfig struct {
	ListenAddress    string `toml:"listen_address" json:"listenAddress"`
	ListenPort       int    `toml:"listen_port" json:"listenPort"`
	ConnectionsLimit int    `toml:"connections_limit" json:"connectionsLimit"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	LogFile            string             `toml:"log_file" json:"logFile"`
	LogLevel           string             `toml:"log_level" json:"level"`
	EnabledComponents  []string           `toml:"enabled_components" json:"enabledComponents"`
	DisabledComponents []string           `toml:"disabled_components" json:"disabledComponents"`
	SampleRate         float64            `toml:"sample_rate" json:"sampleRate"`
	Breadcrumbs        BreadcrumbsConfig  `toml:"breadcrumbs" json:"breadcrumbs"`
}

// BreadcrumbsConfig bounds the per-request breadcrumb trail (§5 resource caps).
type BreadcrumbsConfig struct {
	Enabled  bool `toml:"enabled" json:"enabled"`
	MaxItems int  `toml:"max_items" json:"maxItems"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	ListenAddress string `toml:"listen_address" json:"listenAddress"`
	ListenPort    int    `toml:"listen_port" json:"listenPort"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Implementation    string `toml:"tracer_implementation" json:"tracerImplementation"`
	CollectorEndpoint string `toml:"tracing_collector" json:"tracingCollector"`
}

// NewConfig returns a config initialized with baked-in defaults, used both
// as the pre-load fallback and as the base that file/env values are merged
// onto.
func NewConfig() *EdgeConfig {
	return &EdgeConfig{
		Caches: map[string]*CachingConfig{
			"default": NewCachingConfig(),
		},
		Logging: &LoggingConfig{
			LogFile:  defaultLogFile,
			LogLevel: defaultLogLevel,
			Breadcrumbs: BreadcrumbsConfig{
				Enabled:  true,
				MaxItems: defaultBreadcrumbMaxItems,
			},
		},
		Main: &MainConfig{
			ConfigHandlerPath: defaultConfigHandlerPath,
			PingHandlerPath:   defaultPingHandlerPath,
		},
		Metrics: &MetricsConfig{
			ListenPort: defaultMetricsListenPort,
		},
		Tracing: &TracingConfig{
			Implementation:    defaultTracerImplementation,
			CollectorEndpoint: "",
		},
		Origins: []*OriginConfig{NewOriginConfig("default")},
		Frontend: &FrontendConfig{
			ListenPort: defaultProxyListenPort,
		},
		Video: NewVideoConfig(),
	}
}

// Get returns the currently active configuration snapshot. It returns nil
// until Load (or Update) has published a first snapshot; cmd/edgevideo calls
// Load before anything calls Get.
func Get() *EdgeConfig {
	return current.Load()
}

// set publishes a new snapshot atomically.
func set(c *EdgeConfig) {
	c.Version = 1
	if prev := current.Load(); prev != nil {
		c.Version = prev.Version + 1
	}
	c.LastUpdated = nowFunc()
	current.Store(c)
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// loadFile loads application configuration from a TOML-formatted file.
func (c *EdgeConfig) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		c.setDefaults(&toml.MetaData{})
		return err
	}
	return c.setDefaults(&md)
}

func (c *EdgeConfig) setDefaults(metadata *toml.MetaData) error {
	c.processOriginConfigs(metadata)
	c.processCachingConfigs(metadata)
	if c.Video == nil {
		c.Video = NewVideoConfig()
	}
	return c.Validate()
}

// processOriginConfigs fills in defaults for any field the user did not
// explicitly set, compiles each origin's matcher, and records which caches
// are actually referenced so unused cache configs aren't instantiated.
func (c *EdgeConfig) processOriginConfigs(metadata *toml.MetaData) {
	c.activeCaches = make(map[string]bool)

	seenDefault := false
	for i, o := range c.Origins {
		if o.Name == "" {
			o.Name = fmt.Sprintf("origin-%d", i)
		}
		if o.CacheName == "" {
			o.CacheName = defaultOriginCacheName
		}
		c.activeCaches[o.CacheName] = true

		if o.IsDefault {
			seenDefault = true
		}
		if o.FallbackTTLSecs == 0 {
			o.FallbackTTLSecs = defaultFallbackTTLSecs
		}
		if o.MaxObjectSizeBytes == 0 {
			o.MaxObjectSizeBytes = defaultMaxObjectSizeBytes
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = defaultOriginTimeoutSecs
		}
		o.Timeout = time.Duration(o.TimeoutSecs) * time.Second

		sortSourcesByPriority(o.Sources)

		_ = compileMatcher(o) // errors surfaced by Validate()
	}
	if !seenDefault && len(c.Origins) == 1 {
		c.Origins[0].IsDefault = true
	}
}

func (c *EdgeConfig) processCachingConfigs(metadata *toml.MetaData) {
	for k, v := range c.Caches {
		if _, ok := c.activeCaches[k]; !ok && k != "default" {
			delete(c.Caches, k)
			continue
		}
		if v.CacheType == "" {
			v.CacheType = defaultCacheType
		}
		v.Name = k
		if ct, ok := CacheTypeNames[strings.ToLower(v.CacheType)]; ok {
			v.CacheTypeID = ct
		}
		if v.TTL.OkSecs == 0 {
			v.TTL = NewTTLTable()
		}
		v.Index.ReapInterval = time.Duration(v.Index.ReapIntervalSecs) * time.Second
		v.Index.FlushInterval = time.Duration(v.Index.FlushIntervalSecs) * time.Second
	}
}

func compileMatcher(o *OriginConfig) error {
	if o.Matcher == "" {
		return fmt.Errorf("origin %q has no matcher", o.Name)
	}
	re, err := regexp.Compile(o.Matcher)
	if err != nil {
		return fmt.Errorf("origin %q has invalid matcher: %w", o.Name, err)
	}
	o.compiledMatcher = re
	return nil
}

func sortSourcesByPriority(sources []*SourceConfig) {
	for i := 1; i < len(sources); i++ {
		for j := i; j > 0 && sources[j].Priority < sources[j-1].Priority; j-- {
			sources[j], sources[j-1] = sources[j-1], sources[j]
		}
	}
}

// RuntimeFlags are the command-line flags accepted by cmd/edgevideo.
type RuntimeFlags struct {
	ConfigPath   string
	PrintVersion bool
	customPath   bool
}
