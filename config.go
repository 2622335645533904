package fimlet

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	ktoml "github.com/knadh/koanf/parsers/toml"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	defaults "github.com/michaai/fimlet/default"
)

// Config holds the provider settings read by the completion pipeline.
// The pipeline only ever reads a Config; it never mutates one.
type Config struct {
	Endpoint       string  `koanf:"endpoint" json:"endpoint" toml:"endpoint"`
	APIKey         string  `koanf:"api_key" json:"api_key" toml:"api_key"`
	Model          string  `koanf:"model" json:"model" toml:"model"`
	MaxTokens      int     `koanf:"max_tokens" json:"max_tokens" toml:"max_tokens"`
	Temperature    float64 `koanf:"temperature" json:"temperature" toml:"temperature"`
	ContextLines   int     `koanf:"context_lines" json:"context_lines" toml:"context_lines"`
	Enabled        bool    `koanf:"enabled" json:"enabled" toml:"enabled"`
	TimeoutSeconds int     `koanf:"timeout_seconds" json:"timeout_seconds" toml:"timeout_seconds"`

	// PromptTemplate renders the "prompt" field. The default threads only the prefix.
	PromptTemplate string `koanf:"prompt_template" json:"prompt_template" toml:"prompt_template"`
	// SendSuffix adds a separate "suffix" field for providers that support it.
	SendSuffix bool `koanf:"send_suffix" json:"send_suffix" toml:"send_suffix"`
	// ResponseField is the field name the completion text is extracted from.
	ResponseField string `koanf:"response_field" json:"response_field" toml:"response_field"`
	// ExcludedExtensions extends the built-in denylist of file extensions.
	ExcludedExtensions []string `koanf:"excluded_extensions" json:"excluded_extensions" toml:"excluded_extensions"`
	// RedactShellSecrets masks env-var values in shell script context windows.
	RedactShellSecrets bool `koanf:"redact_shell_secrets" json:"redact_shell_secrets" toml:"redact_shell_secrets"`
}

// ConfigNames lists the config file names looked up in ConfigDir, in order of preference.
var ConfigNames = []string{"config.json", "config.toml", "config.yaml", "config.yml"}

// ConfigDir returns the config directory path.
// Resolution order: $FIMLET_CONFIG_DIR > $XDG_CONFIG_HOME/fimlet > ~/.config/fimlet
func ConfigDir() string {
	if dir := os.Getenv("FIMLET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "fimlet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "fimlet-config")
	}
	return filepath.Join(home, ".config", "fimlet")
}

// ConfigPath returns the first existing config file in ConfigDir,
// or the path of config.json when none exists yet.
func ConfigPath() string {
	dir := ConfigDir()
	for _, name := range ConfigNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, ConfigNames[0])
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults.DefaultConfigJSON), kjson.Parser()); err != nil {
		panic("fimlet: invalid embedded default_config.json: " + err.Error())
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic("fimlet: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from ConfigPath, or returns defaults if no file exists.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads the config file at path layered over the embedded defaults.
// Fields missing from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults.DefaultConfigJSON), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return kjson.Parser(), nil
	case ".toml":
		return ktoml.Parser(), nil
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	}
	return nil, fmt.Errorf("unsupported config format: %s", path)
}

// ValidateConfig checks configuration for potential issues and returns warnings.
// Values are never clamped here; out-of-range values are sent as configured.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if cfg.ContextLines < 0 {
		warnings = append(warnings, "context_lines is negative; only the cursor line will be sent")
	}
	if cfg.MaxTokens <= 0 {
		warnings = append(warnings, "max_tokens should be positive")
	}
	if math.IsNaN(cfg.Temperature) || math.IsInf(cfg.Temperature, 0) {
		warnings = append(warnings, "temperature is not a finite number; requests cannot be encoded")
	} else if cfg.Temperature < 0 || cfg.Temperature > 2 {
		warnings = append(warnings, fmt.Sprintf("temperature %.2f is outside [0, 2]", cfg.Temperature))
	}
	if cfg.TimeoutSeconds <= 0 {
		warnings = append(warnings, "timeout_seconds is not positive; requests will wait indefinitely")
	}

	u, err := url.Parse(ResolveEndpoint(cfg))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		warnings = append(warnings, "endpoint is not an http(s) URL")
		return warnings
	}
	if u.Scheme == "http" && ResolveAPIKey(cfg) != "" && !isLoopback(u.Hostname()) {
		warnings = append(warnings, "api_key is sent over plain http to "+u.Hostname())
	}
	return warnings
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ResolveEndpoint returns the completion endpoint URL.
// Priority: $FIMLET_ENDPOINT env > config value.
func ResolveEndpoint(cfg *Config) string {
	if endpoint := os.Getenv("FIMLET_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if cfg != nil {
		return cfg.Endpoint
	}
	return ""
}

// ResolveAPIKey returns the bearer credential.
// Priority: $FIMLET_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("FIMLET_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.APIKey
	}
	return ""
}

// ResolveModel returns the model identifier.
// Priority: $FIMLET_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("FIMLET_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Model
	}
	return ""
}

// Snapshot returns a copy of cfg with environment overrides applied.
// The copy is what a single pipeline run reads from start to finish.
func Snapshot(cfg *Config) Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	snap := *cfg
	snap.ExcludedExtensions = append([]string(nil), cfg.ExcludedExtensions...)
	snap.Endpoint = ResolveEndpoint(cfg)
	snap.APIKey = ResolveAPIKey(cfg)
	snap.Model = ResolveModel(cfg)
	return snap
}
