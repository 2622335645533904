package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	fimlet "github.com/michaai/fimlet"
)

// isolateConfig points the config dir at an empty temp dir and clears overrides.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FIMLET_CONFIG_DIR", dir)
	t.Setenv("FIMLET_ENDPOINT", "")
	t.Setenv("FIMLET_API_KEY", "")
	t.Setenv("FIMLET_MODEL", "")
	return dir
}

func TestRunCompleteFile(t *testing.T) {
	isolateConfig(t)
	var gotPrompt string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		gotPrompt = payload.Prompt
		w.Write([]byte(`{"text":" b\n"}`))
	}))
	defer provider.Close()
	t.Setenv("FIMLET_ENDPOINT", provider.URL)

	file := filepath.Join(t.TempDir(), "sum.go")
	if err := os.WriteFile(file, []byte("a + \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runComplete(context.Background(), strings.NewReader(""), &out, completeParams{File: file, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "b\n" {
		t.Errorf("expected candidate line %q, got %q", "b\n", out.String())
	}
	if gotPrompt != "a + " {
		t.Errorf("expected prompt %q, got %q", "a + ", gotPrompt)
	}
}

func TestRunCompleteStdinDefaultsToEnd(t *testing.T) {
	isolateConfig(t)
	provider := newProviderServer(t, http.StatusOK, `{"text":"done"}`)
	t.Setenv("FIMLET_ENDPOINT", provider.URL)

	var out bytes.Buffer
	err := runComplete(context.Background(), strings.NewReader("x := "), &out, completeParams{Name: "a.go", Offset: -1})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "done\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunCompleteSkippedPrintsNothing(t *testing.T) {
	isolateConfig(t)
	provider := newProviderServer(t, http.StatusOK, `{"text":"never"}`)
	t.Setenv("FIMLET_ENDPOINT", provider.URL)

	for _, p := range []completeParams{
		{Name: "notes.md", Offset: -1},
		{Name: "a.go", Offset: -1, Auto: true},
	} {
		var out bytes.Buffer
		if err := runComplete(context.Background(), strings.NewReader("text"), &out, p); err != nil {
			t.Fatal(err)
		}
		if out.Len() != 0 {
			t.Errorf("%+v: expected no output, got %q", p, out.String())
		}
	}
}

func TestRunCompleteProviderError(t *testing.T) {
	isolateConfig(t)
	provider := newProviderServer(t, http.StatusInternalServerError, "boom")
	t.Setenv("FIMLET_ENDPOINT", provider.URL)

	var out bytes.Buffer
	err := runComplete(context.Background(), strings.NewReader("x"), &out, completeParams{Name: "a.go", Offset: -1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "api_error: API error: 500") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRunCompleteMissingFile(t *testing.T) {
	isolateConfig(t)
	err := runComplete(context.Background(), strings.NewReader(""), &bytes.Buffer{}, completeParams{File: "/nonexistent/x.go"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPrintConfig(t *testing.T) {
	dir := isolateConfig(t)
	content := "model = \"starcoder2\"\napi_key = \"sk-secret\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printConfig(&out, false); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "sk-secret") {
		t.Errorf("api key leaked:\n%s", out.String())
	}

	var cfg fimlet.Config
	if _, err := toml.Decode(out.String(), &cfg); err != nil {
		t.Fatalf("output is not valid TOML: %v\n%s", err, out.String())
	}
	if cfg.Model != "starcoder2" {
		t.Errorf("expected model starcoder2, got %q", cfg.Model)
	}
	if cfg.APIKey != "***" {
		t.Errorf("expected masked key, got %q", cfg.APIKey)
	}
	if cfg.MaxTokens != 256 {
		t.Errorf("expected default max_tokens, got %d", cfg.MaxTokens)
	}
}

func TestPrintConfigDefaults(t *testing.T) {
	dir := isolateConfig(t)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"model":"other"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printConfig(&out, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `model = "deepseek-coder-6.7b"`) {
		t.Errorf("expected default model in output:\n%s", out.String())
	}
}

func TestRunValidate(t *testing.T) {
	isolateConfig(t)
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
		wantOut string
	}{
		{"valid yaml", "config.yaml", "model: starcoder2\ncontext_lines: 20\n", false, "is valid"},
		{"unknown key", "config.json", `{"modle": "typo"}`, true, "modle"},
		{"bad type", "config.toml", "enabled = \"yes\"\n", true, "enabled"},
		{"plain http key", "config.json", `{"endpoint": "http://example.com/v1/completions", "api_key": "sk"}`, true, "plain http"},
		{"bad template", "config.json", `{"prompt_template": "{{ .Nope"}`, true, "prompt_template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			var out bytes.Buffer
			err := runValidate(&out, path)
			if (err != nil) != tt.wantErr {
				t.Errorf("runValidate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.wantOut, out.String())
			}
		})
	}
}

func TestRunValidateDefaultPath(t *testing.T) {
	isolateConfig(t)
	var out bytes.Buffer
	if err := runValidate(&out, ""); err != nil {
		t.Fatalf("expected missing config to validate, got %v", err)
	}
	if !strings.Contains(out.String(), "config.json is valid") {
		t.Errorf("unexpected output %q", out.String())
	}
}
