package origins

import (
	"testing"

	"github.com/cdnforge/edgevideo/internal/config"
)

func testConfig(t *testing.T) *config.EdgeConfig {
	t.Helper()
	cfg := config.NewConfig()
	o := cfg.Origins[0]
	o.Name = "videos"
	o.Matcher = `^/v/(?P<id>[a-z0-9]+)\.mp4$`
	o.Sources = []*config.SourceConfig{
		{Type: config.SourceObjectStore, Priority: 0, BindingName: "videos", PathTemplate: "videos/${id}.mp4"},
	}
	if err := o.Compile(); err != nil {
		t.Fatalf("compile matcher: %v", err)
	}
	return cfg
}

func TestMatchExtractsCaptureGroups(t *testing.T) {
	cfg := testConfig(t)

	origin, groups, err := Match(cfg, "/v/alpha123.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if origin.Name != "videos" {
		t.Fatalf("expected origin 'videos', got %q", origin.Name)
	}
	if groups["id"] != "alpha123" {
		t.Fatalf("expected id=alpha123, got %q", groups["id"])
	}
}

func TestMatchNoMatchFallsBackToDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Origins[0].IsDefault = true
	_, _, err := Match(cfg, "/unrelated/path")
	if err != nil {
		t.Fatalf("expected fallback to default origin, got error: %v", err)
	}
}

func TestMatchNoMatchNoDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Origins[0].IsDefault = false
	_, _, err := Match(cfg, "/unrelated/path")
	if err == nil {
		t.Fatalf("expected ErrNoMatch")
	}
}

func TestExpandSubstitutesCaptureGroups(t *testing.T) {
	got := Expand("videos/${id}.mp4", map[string]string{"id": "alpha"})
	if got != "videos/alpha.mp4" {
		t.Fatalf("expected videos/alpha.mp4, got %q", got)
	}
}

func TestMatchUsesCaptureGroupNamesForUnnamedGroups(t *testing.T) {
	cfg := config.NewConfig()
	o := cfg.Origins[0]
	o.Name = "videos"
	o.Matcher = `^/v/([a-z0-9]+)\.mp4$`
	o.CaptureGroupNames = []string{"id"}
	o.Sources = []*config.SourceConfig{
		{Type: config.SourceObjectStore, Priority: 0, BindingName: "videos", PathTemplate: "videos/${id}.mp4"},
	}
	if err := o.Compile(); err != nil {
		t.Fatalf("compile matcher: %v", err)
	}

	_, groups, err := Match(cfg, "/v/alpha123.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if groups["id"] != "alpha123" {
		t.Fatalf("expected capture_group_names to resolve id=alpha123, got %+v", groups)
	}
}
