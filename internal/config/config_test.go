package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if config.MinMatchScore != 0.7 {
		t.Errorf("Expected MinMatchScore to be 0.7, got %v", config.MinMatchScore)
	}

	if config.ScanLimit != 400 {
		t.Errorf("Expected ScanLimit to be 400, got %d", config.ScanLimit)
	}

	if config.ChallengeStrategy != StrategyPause {
		t.Errorf("Expected ChallengeStrategy to be 'pause', got '%s'", config.ChallengeStrategy)
	}

	if !config.StopOnSuccess {
		t.Error("Expected StopOnSuccess to be true")
	}

	if config.CloseOnFinish {
		t.Error("Expected CloseOnFinish to be false")
	}

	if !config.DismissBanners {
		t.Error("Expected DismissBanners to be true")
	}

	if config.AllowGlobalCTAAlways {
		t.Error("Expected AllowGlobalCTAAlways to be false")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test-config.yaml")

	config := DefaultConfig()
	config.BrowserProfilePath = filepath.Join(tempDir, "profile")
	config.MaxScrolls = 7
	config.Headless = true
	config.ChallengeStrategy = StrategyBackoff
	config.MinMatchScore = 0.85

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loadedConfig, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedConfig.MaxScrolls != 7 {
		t.Errorf("Expected MaxScrolls to be 7, got %d", loadedConfig.MaxScrolls)
	}

	if !loadedConfig.Headless {
		t.Error("Expected Headless to be true")
	}

	if loadedConfig.ChallengeStrategy != StrategyBackoff {
		t.Errorf("Expected ChallengeStrategy 'backoff', got '%s'", loadedConfig.ChallengeStrategy)
	}

	if loadedConfig.MinMatchScore != 0.85 {
		t.Errorf("Expected MinMatchScore 0.85, got %v", loadedConfig.MinMatchScore)
	}

	if _, err := os.Stat(config.BrowserProfilePath); err != nil {
		t.Errorf("Expected browser profile dir to be created: %v", err)
	}
}

func TestLoadConfigCreatesDefaultIfMissing(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "new-config.yaml")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created automatically")
	}

	if config.MaxScrolls != 3 {
		t.Errorf("Expected default MaxScrolls to be 3, got %d", config.MaxScrolls)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid-config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write invalid YAML: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigRejectsUnknownStrategy(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "strategy.yaml")

	if err := os.WriteFile(configPath, []byte("challenge_strategy: solve\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "challenge_strategy") {
		t.Errorf("Expected challenge_strategy validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero scrolls", func(c *Config) { c.MaxScrolls = 0 }, true},
		{"score above one", func(c *Config) { c.MinMatchScore = 1.2 }, true},
		{"negative score", func(c *Config) { c.MinMatchScore = -0.1 }, true},
		{"zero scan limit", func(c *Config) { c.ScanLimit = 0 }, true},
		{"negative jitter", func(c *Config) { c.RetryJitter = -1 }, true},
		{"wait strategy", func(c *Config) { c.ChallengeStrategy = StrategyWait }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected time.Duration
	}{
		{0, 0},
		{-3, 0},
		{1, time.Second},
		{0.5, 500 * time.Millisecond},
		{2.25, 2250 * time.Millisecond},
	}

	for _, test := range tests {
		if got := Duration(test.seconds); got != test.expected {
			t.Errorf("Duration(%v) = %v, expected %v", test.seconds, got, test.expected)
		}
	}
}

func TestUserDataDir(t *testing.T) {
	dir := UserDataDir()
	if dir == "" {
		t.Fatal("UserDataDir returned empty string")
	}
	if dir != "./dropwatch-data" && !strings.Contains(dir, ".dropwatch") {
		t.Errorf("Expected directory to contain '.dropwatch', got '%s'", dir)
	}
}
