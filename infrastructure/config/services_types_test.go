package config

import (
	"sort"
	"testing"
)

func TestSubscribersConfigIsEnabled(t *testing.T) {
	cfg := &SubscribersConfig{
		Subscribers: map[string]*SubscriberSettings{
			"enabled-sub":  {Enabled: true, Queue: "a"},
			"disabled-sub": {Enabled: false, Queue: "b"},
		},
	}

	t.Run("enabled subscriber", func(t *testing.T) {
		if !cfg.IsEnabled("enabled-sub") {
			t.Error("IsEnabled() should return true for enabled subscriber")
		}
	})

	t.Run("disabled subscriber", func(t *testing.T) {
		if cfg.IsEnabled("disabled-sub") {
			t.Error("IsEnabled() should return false for disabled subscriber")
		}
	})

	t.Run("nonexistent subscriber", func(t *testing.T) {
		if cfg.IsEnabled("nonexistent") {
			t.Error("IsEnabled() should return false for nonexistent subscriber")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		var nilCfg *SubscribersConfig
		if nilCfg.IsEnabled("any") {
			t.Error("IsEnabled() should return false for nil config")
		}
	})

	t.Run("nil subscribers map", func(t *testing.T) {
		emptyCfg := &SubscribersConfig{Subscribers: nil}
		if emptyCfg.IsEnabled("any") {
			t.Error("IsEnabled() should return false for nil subscribers map")
		}
	})
}

func TestSubscribersConfigGetSettings(t *testing.T) {
	cfg := &SubscribersConfig{
		Subscribers: map[string]*SubscriberSettings{
			"test-sub": {Enabled: true, Queue: "q", Description: "Test"},
		},
	}

	t.Run("existing subscriber", func(t *testing.T) {
		settings := cfg.GetSettings("test-sub")
		if settings == nil {
			t.Fatal("GetSettings() returned nil for existing subscriber")
		}
		if settings.Queue != "q" {
			t.Errorf("Queue = %s, want q", settings.Queue)
		}
		if settings.Description != "Test" {
			t.Errorf("Description = %s, want Test", settings.Description)
		}
	})

	t.Run("nonexistent subscriber", func(t *testing.T) {
		settings := cfg.GetSettings("nonexistent")
		if settings != nil {
			t.Error("GetSettings() should return nil for nonexistent subscriber")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		var nilCfg *SubscribersConfig
		settings := nilCfg.GetSettings("any")
		if settings != nil {
			t.Error("GetSettings() should return nil for nil config")
		}
	})
}

func TestSubscribersConfigEnabledSubscribers(t *testing.T) {
	cfg := &SubscribersConfig{
		Subscribers: map[string]*SubscriberSettings{
			"sub-a": {Enabled: true},
			"sub-b": {Enabled: false},
			"sub-c": {Enabled: true},
			"sub-d": {Enabled: false},
		},
	}

	t.Run("returns enabled subscribers", func(t *testing.T) {
		enabled := cfg.EnabledSubscribers()
		if len(enabled) != 2 {
			t.Fatalf("len(EnabledSubscribers()) = %d, want 2", len(enabled))
		}
		sort.Strings(enabled)
		if enabled[0] != "sub-a" || enabled[1] != "sub-c" {
			t.Errorf("EnabledSubscribers() = %v, want [sub-a sub-c]", enabled)
		}
	})

	t.Run("nil config", func(t *testing.T) {
		var nilCfg *SubscribersConfig
		enabled := nilCfg.EnabledSubscribers()
		if enabled != nil {
			t.Error("EnabledSubscribers() should return nil for nil config")
		}
	})

	t.Run("all disabled", func(t *testing.T) {
		allDisabled := &SubscribersConfig{
			Subscribers: map[string]*SubscriberSettings{
				"sub-x": {Enabled: false},
			},
		}
		enabled := allDisabled.EnabledSubscribers()
		if len(enabled) != 0 {
			t.Errorf("EnabledSubscribers() = %v, want empty", enabled)
		}
	})
}

func TestSubscribersConfigDisabledSubscribers(t *testing.T) {
	cfg := &SubscribersConfig{
		Subscribers: map[string]*SubscriberSettings{
			"sub-a": {Enabled: true},
			"sub-b": {Enabled: false},
			"sub-c": {Enabled: true},
			"sub-d": {Enabled: false},
		},
	}

	t.Run("returns disabled subscribers", func(t *testing.T) {
		disabled := cfg.DisabledSubscribers()
		if len(disabled) != 2 {
			t.Fatalf("len(DisabledSubscribers()) = %d, want 2", len(disabled))
		}
		sort.Strings(disabled)
		if disabled[0] != "sub-b" || disabled[1] != "sub-d" {
			t.Errorf("DisabledSubscribers() = %v, want [sub-b sub-d]", disabled)
		}
	})

	t.Run("all enabled", func(t *testing.T) {
		allEnabled := &SubscribersConfig{
			Subscribers: map[string]*SubscriberSettings{
				"sub-x": {Enabled: true},
			},
		}
		disabled := allEnabled.DisabledSubscribers()
		if len(disabled) != 0 {
			t.Errorf("DisabledSubscribers() = %v, want empty", disabled)
		}
	})
}

func TestSubscriberSettingsStruct(t *testing.T) {
	settings := SubscriberSettings{
		Enabled:     true,
		Queue:       "q",
		Description: "Test subscriber",
		Extra: map[string]any{
			"key": "value",
		},
	}

	if !settings.Enabled {
		t.Error("Enabled should be true")
	}
	if settings.Queue != "q" {
		t.Errorf("Queue = %s, want q", settings.Queue)
	}
	if settings.Extra["key"] != "value" {
		t.Error("Extra map not set correctly")
	}
}
