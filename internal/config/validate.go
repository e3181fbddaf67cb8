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
	"fmt"
	"regexp"
	"strings"
)

// ValidationError collects every problem found in a candidate configuration,
// rather than failing on the first one, so an admin update can report a
// complete diagnosis in one round trip.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// Validate checks cross-references (origin -> cache, unique default origin,
// matcher compiles, each source's type and required fields, auth type) and
// returns a ValidationError
// aggregating every problem found.
func (c *EdgeConfig) Validate() error {
	var problems []string

	defaultCount := 0
	seenNames := map[string]bool{}
	for _, o := range c.Origins {
		if o.Name == "" {
			problems = append(problems, "an origin is missing a name")
			continue
		}
		if seenNames[o.Name] {
			problems = append(problems, fmt.Sprintf("duplicate origin name %q", o.Name))
		}
		seenNames[o.Name] = true

		if o.IsDefault {
			defaultCount++
		}

		if o.Matcher == "" {
			problems = append(problems, fmt.Sprintf("origin %q has no matcher", o.Name))
		} else if o.compiledMatcher == nil {
			if _, err := regexp.Compile(o.Matcher); err != nil {
				problems = append(problems, fmt.Sprintf("origin %q matcher does not compile: %v", o.Name, err))
			}
		}

		if len(o.Sources) == 0 {
			problems = append(problems, fmt.Sprintf("origin %q has no sources", o.Name))
		}
		for _, s := range o.Sources {
			if err := validateSource(o.Name, s); err != "" {
				problems = append(problems, err)
			}
		}

		if _, ok := c.Caches[o.CacheName]; !ok {
			problems = append(problems, fmt.Sprintf("origin %q references unknown cache %q", o.Name, o.CacheName))
		}
	}

	if defaultCount > 1 {
		problems = append(problems, "more than one origin is marked is_default")
	}

	for name, cc := range c.Caches {
		if _, ok := CacheTypeNames[strings.ToLower(cc.CacheType)]; !ok {
			problems = append(problems, fmt.Sprintf("cache %q has unknown cache_type %q", name, cc.CacheType))
		}
		if cc.ChunkSizeBytes <= 0 {
			problems = append(problems, fmt.Sprintf("cache %q has non-positive chunk_size_bytes", name))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateSource(originName string, s *SourceConfig) string {
	switch s.Type {
	case SourceObjectStore:
		if s.BindingName == "" {
			return fmt.Sprintf("origin %q has an object_store source with no binding_name", originName)
		}
	case SourceRemote, SourceFallback:
		if s.BaseURL == "" {
			return fmt.Sprintf("origin %q has a %s source with no base_url", originName, s.Type)
		}
	default:
		return fmt.Sprintf("origin %q has a source with unknown type %q", originName, s.Type)
	}
	if s.PathTemplate == "" {
		return fmt.Sprintf("origin %q source (priority %d) has no path_template", originName, s.Priority)
	}
	if s.Auth != nil {
		switch s.Auth.Type {
		case AuthAwsSig, AuthBearer, AuthHeader, AuthQuery, AuthBasic:
		default:
			return fmt.Sprintf("origin %q source has auth with unknown type %q", originName, s.Auth.Type)
		}
	}
	return ""
}
