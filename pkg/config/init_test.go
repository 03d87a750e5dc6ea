package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// useTempConfigDir points the default config location at a fresh directory.
func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "dittodav")
}

func TestInitConfig_Success(t *testing.T) {
	configDir := useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if configPath != filepath.Join(configDir, "config.yaml") {
		t.Errorf("Unexpected config path %s", configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	for _, section := range []string{
		"# DittoDAV Configuration File",
		"logging:",
		"server:",
		"listing:",
		"paginate:",
		"adapters:",
	} {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	if !ConfigExists() {
		t.Error("ConfigExists should report the generated file")
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	useTempConfigDir(t)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	if _, err := InitConfig(true); err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# DittoDAV Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_CreatesDirectories(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "dittodav.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Config file was not created at %s: %v", configPath, err)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	for _, want := range []string{
		"# Pagination overlay",
		"# level: DEBUG, INFO, WARN or ERROR",
		"page_size: 100",
		"ttl: 30m0s",
		"codec: xdr",
		"db_path: /tmp/dittodav-paginate",
		"port: 8080",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Generated YAML missing %q", want)
		}
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level in generated config, got %q", cfg.Logging.Level)
	}
	if cfg.Paginate.PageSize != 100 {
		t.Errorf("Expected page_size 100 in generated config, got %d", cfg.Paginate.PageSize)
	}
	if cfg.Paginate.Store.Type != "memory" {
		t.Errorf("Expected memory store in generated config, got %q", cfg.Paginate.Store.Type)
	}
	if cfg.Adapters.WebDAV.Port != 8080 {
		t.Errorf("Expected port 8080 in generated config, got %d", cfg.Adapters.WebDAV.Port)
	}
}
