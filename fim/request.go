package fim

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	fimlet "github.com/michaai/fimlet"
)

// DefaultPromptTemplate threads only the prefix into the prompt.
const DefaultPromptTemplate = "{{ .Prefix }}"

// StopSequences are sent with every request, regardless of configuration.
var StopSequences = []string{"<|endoftext|>", "<filename>", "</filename>", "<filepath>", "</<filepath>"}

// CompletionRequest is everything needed to ask the provider for one completion.
// It is built fresh for each attempt and passed by value.
type CompletionRequest struct {
	Prefix      string
	Suffix      string
	Model       string
	MaxTokens   int
	Temperature float64
	APIKey      string
	// FileName is only exposed to the prompt template.
	FileName string
}

// NewCompletionRequest carries the window and the model parameters from cfg
// into a request. Numeric parameters are copied unmodified.
func NewCompletionRequest(w Window, fileName string, cfg fimlet.Config) CompletionRequest {
	return CompletionRequest{
		Prefix:      w.Prefix,
		Suffix:      w.Suffix,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		APIKey:      cfg.APIKey,
		FileName:    fileName,
	}
}

// PromptData is the data passed to the prompt template.
type PromptData struct {
	Prefix   string
	Suffix   string
	FileName string
}

type payload struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Suffix      *string  `json:"suffix,omitempty"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop"`
}

// Builder serializes completion requests into the provider's JSON payload.
type Builder struct {
	prompt     *template.Template
	sendSuffix bool
}

var defaultPrompt = template.Must(newPromptTemplate(DefaultPromptTemplate))

func newPromptTemplate(src string) (*template.Template, error) {
	return template.New("prompt").Funcs(sprig.TxtFuncMap()).Parse(src)
}

// CheckPromptTemplate reports whether src parses as a prompt template.
func CheckPromptTemplate(src string) error {
	_, err := newPromptTemplate(src)
	return err
}

// NewBuilder creates a builder rendering prompts with promptTemplate.
// An empty or invalid template falls back to DefaultPromptTemplate.
// When sendSuffix is set the suffix also goes out as a separate "suffix" field.
func NewBuilder(promptTemplate string, sendSuffix bool) *Builder {
	b := &Builder{prompt: defaultPrompt, sendSuffix: sendSuffix}
	if promptTemplate == "" || promptTemplate == DefaultPromptTemplate {
		return b
	}
	t, err := newPromptTemplate(promptTemplate)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
		return b
	}
	b.prompt = t
	return b
}

// Prompt renders the prompt text for req.
func (b *Builder) Prompt(req CompletionRequest) string {
	data := PromptData{Prefix: req.Prefix, Suffix: req.Suffix, FileName: req.FileName}

	var buf strings.Builder
	if err := b.prompt.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		return req.Prefix
	}
	return buf.String()
}

// Build returns the JSON payload for req. Strings are escaped by the JSON
// encoder, which covers backslash, quote, newline, carriage return and tab
// along with every other control character. The stop sequences are always
// included and numbers are written as given.
func (b *Builder) Build(req CompletionRequest) ([]byte, error) {
	p := payload{
		Model:       req.Model,
		Prompt:      b.Prompt(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        StopSequences,
	}
	if b.sendSuffix {
		suffix := req.Suffix
		p.Suffix = &suffix
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
