package main

import (
	"errors"
	"fmt"
	"os"

	fimlet "github.com/michaai/fimlet"
	"github.com/michaai/fimlet/fim"
)

// validateConfig runs every check we have against the config file at path:
// schema violations, semantic warnings and the prompt template. A missing
// file is not an error; the defaults are validated instead.
func validateConfig(path string) ([]string, error) {
	var problems []string

	if _, err := os.Stat(path); err == nil {
		schemaProblems, err := fimlet.ValidateConfigFile(path)
		if err != nil {
			return nil, err
		}
		problems = append(problems, schemaProblems...)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg, err := fimlet.LoadConfigFile(path)
	if err != nil {
		// Syntax errors are already reported by the schema check.
		if len(problems) > 0 {
			return problems, nil
		}
		return nil, err
	}
	problems = append(problems, fimlet.ValidateConfig(cfg)...)
	if err := fim.CheckPromptTemplate(cfg.PromptTemplate); err != nil {
		problems = append(problems, fmt.Sprintf("prompt_template: %v", err))
	}
	return problems, nil
}
