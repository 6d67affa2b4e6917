package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSubscribersConfig(t *testing.T) {
	cfg := DefaultSubscribersConfig()
	if cfg == nil {
		t.Fatal("DefaultSubscribersConfig() returned nil")
	}

	expected := []string{"reactive-graph", "audit-mirror"}

	for _, id := range expected {
		settings, ok := cfg.Subscribers[id]
		if !ok {
			t.Errorf("missing subscriber %q in default config", id)
			continue
		}
		if !settings.Enabled {
			t.Errorf("subscriber %q should be enabled by default", id)
		}
		if settings.Queue == "" {
			t.Errorf("subscriber %q has no queue configured", id)
		}
		if settings.Description == "" {
			t.Errorf("subscriber %q has no description", id)
		}
	}
}

func TestLoadSubscribersConfigFromPath(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subscribers.yaml")

		configContent := `
subscribers:
  testsub:
    enabled: true
    queue: testing
    description: "Test subscriber"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadSubscribersConfigFromPath(configPath)
		if err != nil {
			t.Fatalf("LoadSubscribersConfigFromPath() error = %v", err)
		}

		if cfg == nil {
			t.Fatal("LoadSubscribersConfigFromPath() returned nil")
		}

		sub, ok := cfg.Subscribers["testsub"]
		if !ok {
			t.Fatal("testsub not found in config")
		}
		if sub.Queue != "testing" {
			t.Errorf("queue = %s, want testing", sub.Queue)
		}
		if !sub.Enabled {
			t.Error("subscriber should be enabled")
		}
	})

	t.Run("missing queue", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subscribers.yaml")

		configContent := `
subscribers:
  testsub:
    enabled: true
    description: "Test subscriber"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadSubscribersConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for missing queue")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadSubscribersConfigFromPath("/nonexistent/path/subscribers.yaml")
		if err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subscribers.yaml")

		if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadSubscribersConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

func TestLoadSubscribersConfigOrDefault(t *testing.T) {
	cfg := LoadSubscribersConfigOrDefault()
	if cfg == nil {
		t.Fatal("LoadSubscribersConfigOrDefault() returned nil")
	}

	if len(cfg.Subscribers) == 0 {
		t.Error("expected non-empty subscribers map")
	}
}
