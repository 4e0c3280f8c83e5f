package internal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if got := cfg.Project.DocsPath(); got != "docs" {
		t.Errorf("docs path = %q, want docs", got)
	}
}

func TestProjectConfig_DocsPath(t *testing.T) {
	cfg := ProjectConfig{Root: "/srv/app", DocsDir: "plan"}
	if got := cfg.DocsPath(); got != filepath.Join("/srv/app", "plan") {
		t.Errorf("relative docs path = %q", got)
	}

	cfg.DocsDir = "/var/plan"
	if got := cfg.DocsPath(); got != "/var/plan" {
		t.Errorf("absolute docs path = %q", got)
	}
}

func TestProjectConfig_RequiresDocsDir(t *testing.T) {
	cfg := ProjectConfig{Root: "."}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty docs_dir should fail validation")
	}
}

func TestHTTPConfig_InvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		cfg := HTTPConfig{Port: port}
		if err := cfg.Validate(); err == nil {
			t.Errorf("port %d should fail validation", port)
		}
	}
}

func TestEventsConfig_NegativeThrottle(t *testing.T) {
	cfg := EventsConfig{GraphThrottle: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative throttle should fail validation")
	}
}

func TestFullConfig_SQLiteValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch sqlite error")
	}
}
