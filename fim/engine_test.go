package fim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	fimlet "github.com/michaai/fimlet"
)

// fakeProvider answers every completion with body and records the last payload.
type fakeProvider struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Value
}

func newFakeProvider(t *testing.T, status int, body string) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("provider got invalid JSON: %v", err)
		}
		p.last.Store(payload)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) payload() map[string]interface{} {
	v, _ := p.last.Load().(map[string]interface{})
	return v
}

func explicitRequest(buffer string, offset int, fileName string) *fimlet.Request {
	return &fimlet.Request{
		RequestID:    7,
		Buffer:       buffer,
		CursorOffset: offset,
		FileName:     fileName,
		Invocation:   fimlet.InvocationExplicit,
	}
}

func TestEngineCompleteCandidate(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, `{"choices":[{"text":"  a + b\n"}]}`)
	e := NewEngine()
	defer e.Close()

	buf := "func add(a, b int) int {\n\treturn \n}\n"
	resp := e.Complete(context.Background(), explicitRequest(buf, len("func add(a, b int) int {\n\treturn "), "math.go"), testConfig(p.srv.URL))

	if resp.RequestID != 7 {
		t.Errorf("expected request id 7, got %d", resp.RequestID)
	}
	if resp.Error != nil || resp.Skipped != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Candidate == nil || resp.Candidate.Text != "a + b" {
		t.Fatalf("expected trimmed candidate %q, got %+v", "a + b", resp.Candidate)
	}
	if p.calls.Load() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.calls.Load())
	}
}

func TestEngineSendsPrefixOnly(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, `{"text":"x"}`)
	e := NewEngine()

	buf := "line1\nline2\nline3"
	e.Complete(context.Background(), explicitRequest(buf, len("line1\nli"), "a.go"), testConfig(p.srv.URL))

	payload := p.payload()
	if payload["prompt"] != "line1\nli" {
		t.Errorf("expected prompt to be the prefix, got %q", payload["prompt"])
	}
	if _, ok := payload["suffix"]; ok {
		t.Error("suffix must not be sent by default")
	}
}

func TestEngineSkips(t *testing.T) {
	tests := []struct {
		name   string
		req    *fimlet.Request
		mutate func(*fimlet.Config)
		want   SkipReason
	}{
		{
			name: "auto invocation",
			req: &fimlet.Request{
				Buffer: "x := ", CursorOffset: 5, FileName: "a.go", Invocation: fimlet.InvocationAuto,
			},
			want: SkipImplicit,
		},
		{
			name:   "disabled",
			req:    explicitRequest("x := ", 5, "a.go"),
			mutate: func(c *fimlet.Config) { c.Enabled = false },
			want:   SkipDisabled,
		},
		{
			name: "excluded file",
			req:  explicitRequest("# Title\n", 8, "README.md"),
			want: SkipExcludedFile,
		},
		{
			name:   "configured exclusion",
			req:    explicitRequest("SELECT ", 7, "q.sql"),
			mutate: func(c *fimlet.Config) { c.ExcludedExtensions = []string{"sql"} },
			want:   SkipExcludedFile,
		},
		{
			name: "empty buffer",
			req:  explicitRequest("", 0, "a.go"),
			want: SkipEmptyWindow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider(t, http.StatusOK, `{"text":"never"}`)
			cfg := testConfig(p.srv.URL)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			res := NewEngine().CompleteVerbose(context.Background(), tt.req, cfg)
			if res.Response.Skipped != string(tt.want) {
				t.Errorf("expected skip %q, got %q", tt.want, res.Response.Skipped)
			}
			if res.Response.Candidate != nil || res.Response.Error != nil {
				t.Errorf("skipped request produced output: %+v", res.Response)
			}
			if res.Request != nil || res.Result != nil {
				t.Error("skipped request should not build a provider request")
			}
			if p.calls.Load() != 0 {
				t.Errorf("expected no provider calls, got %d", p.calls.Load())
			}
		})
	}
}

func TestEngineBlankCompletion(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, `{"text":"  \n\t "}`)
	resp := NewEngine().Complete(context.Background(), explicitRequest("x := ", 5, "a.go"), testConfig(p.srv.URL))

	if resp.Candidate != nil {
		t.Errorf("blank completion should not produce a candidate, got %+v", resp.Candidate)
	}
	if resp.Error != nil {
		t.Errorf("blank completion is not an error, got %+v", resp.Error)
	}
}

func TestEngineAPIError(t *testing.T) {
	p := newFakeProvider(t, http.StatusServiceUnavailable, "loading model")
	res := NewEngine().CompleteVerbose(context.Background(), explicitRequest("x := ", 5, "a.go"), testConfig(p.srv.URL))

	if res.Response.Candidate != nil {
		t.Errorf("expected no candidate, got %+v", res.Response.Candidate)
	}
	if res.Response.Error == nil {
		t.Fatal("expected error")
	}
	if res.Response.Error.Code != "api_error" {
		t.Errorf("expected api_error, got %q", res.Response.Error.Code)
	}
	if res.Response.Error.Message != "API error: 503" {
		t.Errorf("unexpected message %q", res.Response.Error.Message)
	}
	if _, ok := res.Result.(Failure); !ok {
		t.Errorf("expected Failure result, got %#v", res.Result)
	}
}

func TestEngineTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp := NewEngine().Complete(context.Background(), explicitRequest("x := ", 5, "a.go"), testConfig(url))
	if resp.Error == nil || resp.Error.Code != "transport_error" {
		t.Fatalf("expected transport_error, got %+v", resp.Error)
	}
	if resp.Candidate != nil {
		t.Errorf("expected no candidate, got %+v", resp.Candidate)
	}
}

func TestEngineRequestBuildError(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, `{"choices":[{"text":"1"}]}`)
	cfg := testConfig(p.srv.URL)
	cfg.Temperature = math.NaN()

	res := NewEngine().CompleteVerbose(context.Background(), explicitRequest("x := ", 5, "a.go"), cfg)
	if res.Response.Error == nil || res.Response.Error.Code != "request_error" {
		t.Fatalf("expected request_error, got %+v", res.Response.Error)
	}
	f, ok := res.Result.(Failure)
	if !ok || !errors.Is(f.Err, ErrBuildRequest) {
		t.Errorf("expected ErrBuildRequest failure, got %#v", res.Result)
	}
	if n := p.calls.Load(); n != 0 {
		t.Errorf("expected no provider calls, got %d", n)
	}
}

func TestEngineRedactsShellScripts(t *testing.T) {
	buf := "export API_TOKEN=hunter2\ncurl -H \"X-Key: $API_TOKEN\" "
	for _, tt := range []struct {
		name   string
		file   string
		redact bool
		want   string
	}{
		{"enabled for shell", "deploy.sh", true, "export API_TOKEN=***\ncurl -H \"X-Key: $REDACTED\" "},
		{"disabled", "deploy.sh", false, buf},
		{"not a shell script", "deploy.py", true, buf},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider(t, http.StatusOK, `{"text":"x"}`)
			cfg := testConfig(p.srv.URL)
			cfg.RedactShellSecrets = tt.redact

			res := NewEngine().CompleteVerbose(context.Background(), explicitRequest(buf, len(buf), tt.file), cfg)
			if got := p.payload()["prompt"]; got != tt.want {
				t.Errorf("provider saw prompt %q, want %q", got, tt.want)
			}
			if res.Window.Prefix != buf {
				t.Errorf("window should hold the unredacted prefix, got %q", res.Window.Prefix)
			}
		})
	}
}

func TestEngineRequestID(t *testing.T) {
	resp := NewEngine().Complete(context.Background(), &fimlet.Request{RequestID: 42, Invocation: fimlet.InvocationAuto}, *fimlet.DefaultConfig())
	if resp.RequestID != 42 {
		t.Errorf("expected request id 42, got %d", resp.RequestID)
	}
}
