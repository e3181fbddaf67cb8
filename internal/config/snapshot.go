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

import "encoding/json"

// Snapshot returns the active configuration serialized for the admin
// config endpoint. Secrets (redis passwords, etc.) are tagged json:"-"
// on their structs so they never reach this output.
func Snapshot() ([]byte, error) {
	c := Get()
	return json.MarshalIndent(c, "", "  ")
}

// ApplySnapshot decodes a candidate configuration from JSON and attempts to
// publish it via Update. On validation failure the previously active
// snapshot remains live and the error describes every problem found.
func ApplySnapshot(body []byte) error {
	candidate := NewConfig()
	candidate.Caches = map[string]*CachingConfig{}
	if err := json.Unmarshal(body, candidate); err != nil {
		return err
	}
	if candidate.Video == nil {
		candidate.Video = NewVideoConfig()
	}
	if len(candidate.Caches) == 0 {
		candidate.Caches["default"] = NewCachingConfig()
	}
	return Update(candidate)
}
