package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoDAV Configuration File
#
# Every value can be overridden with an environment variable named after its
# path, for example DITTODAV_PAGINATE_PAGE_SIZE=50.

`

// sectionComments documents the top-level sections of a generated file.
var sectionComments = map[string][]string{
	"logging": {
		"Logging",
		"level: DEBUG, INFO, WARN or ERROR",
		"format: text or json",
		"output: stdout, stderr or a file path",
	},
	"server": {
		"Server-wide settings. The metrics endpoint serves /metrics and /healthz.",
	},
	"listing": {
		"Tree served by PROPFIND",
		"type: os (serve root from disk) or memory (empty tree)",
	},
	"paginate": {
		"Pagination overlay",
		"page_size: results returned by the first response of a listing",
		"ttl: how long the remaining results can be fetched with the token",
		"codec: xdr or msgpack, used by the badger, sqlstore and s3 stores",
		"store.type: memory, badger, sqlstore or s3; only the matching section is read",
	},
	"adapters": {
		"Protocol adapters",
	},
}

// InitConfig writes a sample configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a comment above each
// top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if lines, ok := sectionComments[key.Value]; ok {
			key.HeadComment = "# " + strings.Join(lines, "\n# ")
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}
