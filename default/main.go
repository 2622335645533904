// Package defaults provides embedded default assets (config and its schema).
package defaults

import _ "embed"

//go:embed default_config.json
var DefaultConfigJSON []byte

//go:embed config_schema.json
var ConfigSchemaJSON string
