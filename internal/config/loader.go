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
	"flag"
	"fmt"
	"os"
)

// Load builds the initial configuration: baked-in defaults, overlaid with
// any file at path (if non-empty), overlaid with environment variables,
// then published as the active snapshot. Until it has been published, Get
// returns nil.
func Load(path string) error {
	LoaderWarnings = make([]string, 0)

	c := NewConfig()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("config file %q not found: %w", path, err)
			}
			return err
		}
	} else {
		if err := c.setDefaults(nil); err != nil {
			return err
		}
	}

	c.loadEnvVars()

	if len(c.Origins) == 0 {
		return fmt.Errorf("no origins configured")
	}

	if err := c.Validate(); err != nil {
		return err
	}

	set(c)
	return nil
}

// Update validates a candidate configuration and, if valid, publishes it as
// the new active snapshot (C9: "reject invalid updates with structured
// validation errors, fallback to previous valid snapshot"). The previous
// snapshot remains live on error.
func Update(c *EdgeConfig) error {
	c.processOriginConfigs(nil)
	c.processCachingConfigs(nil)
	if err := c.Validate(); err != nil {
		return err
	}
	set(c)
	return nil
}

// loadEnvVars overrides select fields from the environment, following the
// same "only override if explicitly provided" discipline the TOML loader
// uses for file values.
func (c *EdgeConfig) loadEnvVars() {
	if v := os.Getenv("EDGEVIDEO_LISTEN_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &c.Frontend.ListenPort)
	}
	if v := os.Getenv("EDGEVIDEO_LOG_LEVEL"); v != "" {
		c.Logging.LogLevel = v
	}
	if v := os.Getenv("EDGEVIDEO_CONFIG_DEBUG"); v == "true" {
		c.Debug = true
	}
}

// ParseFlags parses the command line flags accepted by cmd/edgevideo.
func ParseFlags(applicationName string, arguments []string) error {
	fs := flag.NewFlagSet(applicationName, flag.ContinueOnError)
	fs.StringVar(&Flags.ConfigPath, "config", "", "path to the TOML configuration file")
	fs.BoolVar(&Flags.PrintVersion, "version", false, "print version and exit")
	if err := fs.Parse(arguments); err != nil {
		return err
	}
	Flags.customPath = Flags.ConfigPath != ""
	return nil
}
