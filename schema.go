package fimlet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ktoml "github.com/knadh/koanf/parsers/toml"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	defaults "github.com/michaai/fimlet/default"
)

// ValidateConfigFile validates the config file at path against the embedded
// JSON Schema. It returns one message per violation; an empty slice means
// the file is valid. Syntax errors are reported as violations too.
func ValidateConfigFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var doc gojsonschema.JSONLoader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		doc = gojsonschema.NewBytesLoader(content)
	case ".yaml", ".yml":
		var data map[string]interface{}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return []string{fmt.Sprintf("invalid YAML syntax: %v", err)}, nil
		}
		if data == nil {
			data = map[string]interface{}{}
		}
		doc = gojsonschema.NewGoLoader(data)
	case ".toml":
		data, err := ktoml.Parser().Unmarshal(content)
		if err != nil {
			return []string{fmt.Sprintf("invalid TOML syntax: %v", err)}, nil
		}
		doc = gojsonschema.NewGoLoader(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(defaults.ConfigSchemaJSON), doc)
	if err != nil {
		return []string{fmt.Sprintf("invalid syntax: %v", err)}, nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return problems, nil
}
