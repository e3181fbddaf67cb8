package origins

import "github.com/cdnforge/edgevideo/internal/config"

// ResolvedSource is a SourceConfig with its path template already expanded
// against a request's capture groups.
type ResolvedSource struct {
	Source *config.SourceConfig
	Path   string
}

// ResolveSources expands every source's path template for an origin match,
// preserving priority order (lowest Priority first, as sorted by config).
func ResolveSources(o *config.OriginConfig, groups map[string]string) []ResolvedSource {
	out := make([]ResolvedSource, 0, len(o.Sources))
	for _, src := range o.Sources {
		out = append(out, ResolvedSource{Source: src, Path: Expand(src.PathTemplate, groups)})
	}
	return out
}

// ByType filters resolved sources to a single SourceType, preserving order.
func ByType(sources []ResolvedSource, t config.SourceType) []ResolvedSource {
	out := make([]ResolvedSource, 0, len(sources))
	for _, s := range sources {
		if s.Source.Type == t {
			out = append(out, s)
		}
	}
	return out
}
