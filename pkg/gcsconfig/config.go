// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gcsconfig loads the runtime's root configuration and named
// tool-loading manifests from YAML, layering environment variable overrides
// on top the way the rest of the ecosystem does it: built-in defaults, then
// a YAML file, then process environment.
package gcsconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// expandEnv resolves ${VAR} and ${VAR:-default} references against the
// process environment.
func expandEnv(s string) string {
	s = envWithDefault.ReplaceAllStringFunc(s, func(m string) string {
		parts := envWithDefault.FindStringSubmatch(m)
		if val, ok := os.LookupEnv(parts[1]); ok && val != "" {
			return val
		}
		return parts[2]
	})
	return envBraced.ReplaceAllStringFunc(s, func(m string) string {
		parts := envBraced.FindStringSubmatch(m)
		return os.Getenv(parts[1])
	})
}

// Config is the runtime's root configuration, assembled from defaults, a
// YAML manifest, and environment overrides, in that priority order.
type Config struct {
	ConfigDir      string        `yaml:"config_dir"`
	AgentsDir      string        `yaml:"agents_dir"`
	RuntimeDataDir string        `yaml:"runtime_data_dir"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`

	LLM LLMConfig `yaml:"llm"`

	MaxContextChars      int `yaml:"max_context_chars"`
	MaxHistoryLength     int `yaml:"max_history_length"`
	CompressionThreshold int `yaml:"compression_threshold"`
	MaxToolCalls         int `yaml:"max_tool_calls"`

	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	MCPCallTimeout  time.Duration `yaml:"mcp_call_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	HealthInterval  time.Duration `yaml:"health_check_interval"`

	QwenClientID            string `yaml:"qwen_client_id"`
	QwenAuthorizationServer string `yaml:"qwen_authorization_server"`

	ApprovalMode string `yaml:"approval_mode"`
}

// LLMConfig configures the default LLM provider connection.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// Defaults returns a Config populated with the spec's documented defaults.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ConfigDir:               ".",
		AgentsDir:               "agents",
		RuntimeDataDir:          filepath.Join(home, ".gcs"),
		LogLevel:                "info",
		LogFormat:               "text",
		MaxContextChars:         8000,
		MaxHistoryLength:        20,
		CompressionThreshold:    8000,
		MaxToolCalls:            2,
		LLMTimeout:              30 * time.Second,
		MCPCallTimeout:          30 * time.Second,
		LockTimeout:             10 * time.Second,
		ApprovalTimeout:         60 * time.Second,
		HealthInterval:          30 * time.Second,
		QwenAuthorizationServer: "https://chat.qwen.ai",
		ApprovalMode:            "default",
	}
}

// Load builds the Config: defaults, then path (if non-empty and present) as
// a YAML overlay, then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else {
			expanded := expandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("AGENTS_DIR"); v != "" {
		cfg.AgentsDir = v
	}
	if v := os.Getenv("RUNTIME_DATA_DIR"); v != "" {
		cfg.RuntimeDataDir = v
	}
	if v := os.Getenv("GCS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := intFromEnv("MAX_CONTEXT_SIZE"); v != 0 {
		cfg.MaxContextChars = v
	}
	if v := intFromEnv("MAX_HISTORY_LENGTH"); v != 0 {
		cfg.MaxHistoryLength = v
	}
	if v := intFromEnv("COMPRESSION_THRESHOLD"); v != 0 {
		cfg.CompressionThreshold = v
	}
	if v := os.Getenv("QWEN_CLIENT_ID"); v != "" {
		cfg.QwenClientID = v
	}
	if v := os.Getenv("QWEN_AUTHORIZATION_SERVER"); v != "" {
		cfg.QwenAuthorizationServer = v
	}
}

func intFromEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Manifest is a named configuration: the set of local tools to load and
// optional domain context prepended to the system prompt (§4.10, glossary).
type Manifest struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Tools         []string `yaml:"tools"`
	DomainContext string   `yaml:"domain_context"`
}

// LoadManifest reads a named configuration manifest "<name>.yaml" from dir.
func LoadManifest(dir, name string) (*Manifest, error) {
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	return &m, nil
}

// ListManifests returns the names of all "*.yaml" manifests under dir.
func ListManifests(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}
