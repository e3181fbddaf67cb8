// Package origins resolves an incoming request path to an OriginConfig and
// expands its source path templates using the matcher's named capture
// groups (C3).
package origins

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cdnforge/edgevideo/internal/config"
)

// ErrNoMatch is returned when no configured origin matches a path.
var ErrNoMatch = fmt.Errorf("origins: no origin matches path")

// buildGroups maps a matcher's capture groups to names. Go's inline
// `(?P<name>...)` syntax takes precedence; an unnamed group at position i
// falls back to captureNames[i-1] when the origin declares one there,
// so a plain `(...)` matcher still produces named captures for path
// template expansion (§3, §4.3).
func buildGroups(re *regexp.Regexp, m []string, captureNames []string) map[string]string {
	groups := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		if name == "" {
			if i-1 < len(captureNames) && captureNames[i-1] != "" {
				name = captureNames[i-1]
			} else {
				continue
			}
		}
		groups[name] = m[i]
	}
	return groups
}

// Match finds the first origin (in configured, priority order) whose
// matcher regexp matches path, and returns the origin plus the named
// capture groups extracted from the match.
func Match(cfg *config.EdgeConfig, path string) (*config.OriginConfig, map[string]string, error) {
	for _, o := range cfg.Origins {
		re := o.CompiledMatcher()
		if re == nil {
			continue
		}
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		return o, buildGroups(re, m, o.CaptureGroupNames), nil
	}

	for _, o := range cfg.Origins {
		if o.IsDefault {
			return o, map[string]string{}, nil
		}
	}
	return nil, nil, ErrNoMatch
}

// Matched is a single (origin, captures) pair along an origin-chain.
type Matched struct {
	Origin *config.OriginConfig
	Groups map[string]string
}

// MatchAll finds every origin (in configured order) whose matcher matches
// path, for the dispatcher's failover walk (§4.5 step 4). Like Match, when
// no origin's matcher matches it falls back to the default origin(s), with
// empty capture groups.
func MatchAll(cfg *config.EdgeConfig, path string) []Matched {
	var out []Matched
	for _, o := range cfg.Origins {
		re := o.CompiledMatcher()
		if re == nil {
			continue
		}
		m := re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		out = append(out, Matched{Origin: o, Groups: buildGroups(re, m, o.CaptureGroupNames)})
	}
	if len(out) == 0 {
		for _, o := range cfg.Origins {
			if o.IsDefault {
				out = append(out, Matched{Origin: o, Groups: map[string]string{}})
			}
		}
	}
	return out
}

// Expand substitutes ${name} placeholders in template with values from
// groups, for turning a SourceConfig.PathTemplate into a concrete path.
func Expand(template string, groups map[string]string) string {
	out := template
	for name, val := range groups {
		out = strings.ReplaceAll(out, "${"+name+"}", val)
	}
	return out
}
