package fim

import (
	"strings"

	fimlet "github.com/michaai/fimlet"
)

// SkipReason names why a completion request did not run the pipeline.
// The empty value means the pipeline should run.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipImplicit     SkipReason = "implicit_invocation"
	SkipDisabled     SkipReason = "disabled"
	SkipExcludedFile SkipReason = "excluded_file"
	SkipEmptyWindow  SkipReason = "empty_window"
)

// ExcludedExtensions are never completed, whatever the configuration says.
var ExcludedExtensions = []string{
	".md", ".txt", ".json", ".xml", ".yaml", ".yml", ".toml", ".ini", ".properties",
}

// Policy gates completion requests before any work is done.
type Policy struct {
	excluded []string
}

// NewPolicy creates a policy denying ExcludedExtensions plus extra.
func NewPolicy(extra []string) Policy {
	excluded := append([]string(nil), ExcludedExtensions...)
	for _, ext := range extra {
		if ext = configuredExt(ext); ext != "" {
			excluded = append(excluded, ext)
		}
	}
	return Policy{excluded: excluded}
}

// Check returns why the request should be skipped, or SkipNone.
// fileName may be a full file name ("README.md") or an extension (".md", "md").
func (p Policy) Check(kind fimlet.Invocation, fileName string, enabled bool) SkipReason {
	if kind != fimlet.InvocationExplicit {
		return SkipImplicit
	}
	if !enabled {
		return SkipDisabled
	}
	if p.Excluded(fileName) {
		return SkipExcludedFile
	}
	return SkipNone
}

// ShouldRun reports whether the pipeline should run for the request.
func (p Policy) ShouldRun(kind fimlet.Invocation, fileName string, enabled bool) bool {
	return p.Check(kind, fileName, enabled) == SkipNone
}

// Excluded reports whether fileName ends with a denied extension, ignoring case.
func (p Policy) Excluded(fileName string) bool {
	name := normalizeExt(fileName)
	if name == "" {
		return false
	}
	for _, ext := range p.excluded {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// configuredExt turns a configured exclusion ("sql", ".sql", "*.sql",
// "tar.gz") into a lowercase suffix that starts with a dot.
func configuredExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimLeft(s, "*")
	if s == "" || s == "." {
		return ""
	}
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}

// normalizeExt lowercases s and turns a bare extension ("md") into ".md".
func normalizeExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.Contains(s, ".") {
		s = "." + s
	}
	return s
}
