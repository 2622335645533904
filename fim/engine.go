// Package fim runs the fill-in-middle completion pipeline: it gates the
// request, cuts a context window around the cursor, asks the provider for
// a completion and turns the answer into an insertable candidate.
package fim

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	fimlet "github.com/michaai/fimlet"
)

// Engine runs the completion pipeline. It holds no per-request state, so
// one Engine can serve concurrent requests.
type Engine struct {
	client *Client
}

// NewEngine creates an engine with the default client.
func NewEngine() *Engine {
	return NewEngineWithClient(NewClient())
}

// NewEngineWithClient creates an engine that sends requests through client.
func NewEngineWithClient(client *Client) *Engine {
	return &Engine{client: client}
}

// Close is a no-op. The engine holds nothing between requests; Close exists
// so an Engine satisfies the daemon's Completer interface.
func (e *Engine) Close() {}

// CompleteResult holds the response along with the intermediate pipeline values.
type CompleteResult struct {
	Response *fimlet.Response
	// Window is the context window, before any redaction.
	Window Window
	// Request is nil when the pipeline was skipped.
	Request *CompletionRequest
	// Result is nil when the pipeline was skipped.
	Result Result
}

// Complete processes a completion request using the settings snapshot cfg.
func (e *Engine) Complete(ctx context.Context, req *fimlet.Request, cfg fimlet.Config) *fimlet.Response {
	return e.CompleteVerbose(ctx, req, cfg).Response
}

// CompleteVerbose is like Complete but also returns intermediate values.
func (e *Engine) CompleteVerbose(ctx context.Context, req *fimlet.Request, cfg fimlet.Config) *CompleteResult {
	resp := &fimlet.Response{RequestID: req.RequestID}
	out := &CompleteResult{Response: resp}

	policy := NewPolicy(cfg.ExcludedExtensions)
	if reason := policy.Check(req.Invocation, req.FileName, cfg.Enabled); reason != SkipNone {
		slog.Debug("completion skipped", "reason", reason, "file", req.FileName)
		resp.Skipped = string(reason)
		return out
	}

	w := Extract(req.Buffer, req.CursorOffset, cfg.ContextLines)
	out.Window = w
	if w.Empty() {
		slog.Debug("completion skipped", "reason", SkipEmptyWindow, "file", req.FileName)
		resp.Skipped = string(SkipEmptyWindow)
		return out
	}

	if cfg.RedactShellSecrets && IsShellScript(req.FileName) {
		w = RedactWindow(w)
	}

	creq := NewCompletionRequest(w, req.FileName, cfg)
	out.Request = &creq

	slog.Debug("sending completion request",
		"endpoint", cfg.Endpoint,
		"model", creq.Model,
		"prefix_bytes", len(creq.Prefix),
		"suffix_bytes", len(creq.Suffix),
	)

	res := e.client.Send(ctx, creq, cfg)
	out.Result = res

	switch r := res.(type) {
	case Success:
		if text := strings.TrimSpace(r.Text); text != "" {
			resp.Candidate = &fimlet.Candidate{Text: text}
		}
	case Failure:
		resp.Error = &fimlet.Error{Code: errorCode(r.Err), Message: r.Err.Error()}
	}
	return out
}

func errorCode(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, ErrBuildRequest):
		return "request_error"
	}
	return "transport_error"
}
