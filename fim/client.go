package fim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	fimlet "github.com/michaai/fimlet"
)

// Result is the outcome of a completion call: either Success or Failure.
type Result interface {
	isResult()
}

// Success carries the parsed completion text. Text may be empty when the
// provider answered but no completion could be extracted.
type Success struct {
	Text string
}

// Failure carries the cause of a failed completion call.
type Failure struct {
	Err error
}

func (Success) isResult() {}
func (Failure) isResult() {}

// APIError is the failure for a non-200 provider response.
type APIError struct {
	Status int
	// Body is the provider's error body, or "Unknown error" if unavailable.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d", e.Status)
}

// ErrReadTimeout is the failure when the response body stalls longer than the timeout.
var ErrReadTimeout = errors.New("read timed out")

// ErrBuildRequest wraps failures to encode the payload. Nothing was sent.
var ErrBuildRequest = errors.New("cannot build completion request")

const unknownErrorBody = "Unknown error"

// Client performs the HTTP round trip to the completion provider.
type Client struct {
	// Parser extracts completion text from response bodies. When nil, a
	// FieldPattern for the configured response_field is used.
	Parser *Parser
}

// NewClient creates a client using the default response parsing strategy.
func NewClient() *Client {
	return &Client{}
}

func (c *Client) parser(cfg fimlet.Config) *Parser {
	if c.Parser != nil {
		return c.Parser
	}
	field := cfg.ResponseField
	if field == "" {
		field = "text"
	}
	return NewParser(NewFieldPattern(field))
}

// Send posts req to cfg.Endpoint and waits for the answer. Connecting and
// each wait for data are bounded by cfg.TimeoutSeconds (zero means no bound)
// as well as by ctx. Every outcome, including transport faults, is reported
// through the returned Result.
func (c *Client) Send(ctx context.Context, req CompletionRequest, cfg fimlet.Config) Result {
	body, err := NewBuilder(cfg.PromptTemplate, cfg.SendSuffix).Build(req)
	if err != nil {
		slog.Warn("failed to build completion request", "error", err)
		return Failure{Err: fmt.Errorf("%w: %w", ErrBuildRequest, err)}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	transport := newTransport(timeout)
	defer transport.CloseIdleConnections()
	httpClient := &http.Client{Transport: transport}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Warn("completion request failed", "error", err)
		return Failure{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		slog.Warn("completion request failed", "error", err)
		return Failure{Err: err}
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if timeout > 0 {
		idle := newIdleReader(resp.Body, timeout, func() { cancel(ErrReadTimeout) })
		defer idle.stop()
		r = idle
	}
	data, readErr := io.ReadAll(r)
	if readErr != nil && errors.Is(context.Cause(ctx), ErrReadTimeout) {
		readErr = ErrReadTimeout
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if readErr != nil || msg == "" {
			msg = unknownErrorBody
		}
		slog.Warn("completion API error", "status", resp.StatusCode, "body", msg)
		return Failure{Err: &APIError{Status: resp.StatusCode, Body: msg}}
	}

	if readErr != nil {
		slog.Warn("completion request failed", "error", readErr)
		return Failure{Err: readErr}
	}

	return Success{Text: c.parser(cfg).Parse(string(data))}
}

// newTransport returns a transport that opens a fresh connection per
// request and applies timeout to dialing, TLS and awaiting headers.
func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
	}
}

// idleReader fires onIdle when no Read completes within timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle func()) *idleReader {
	return &idleReader{r: r, timeout: timeout, timer: time.AfterFunc(timeout, onIdle)}
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.timer.Reset(r.timeout)
	return n, err
}

func (r *idleReader) stop() {
	r.timer.Stop()
}
