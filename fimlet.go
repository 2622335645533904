// Package fimlet defines the request/response types for fimlet IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package fimlet

// Invocation describes how the editor triggered a completion request.
type Invocation string

const (
	// InvocationExplicit is a user-invoked completion (e.g. a keybinding).
	InvocationExplicit Invocation = "explicit"
	// InvocationAuto is an automatic, as-you-type completion.
	InvocationAuto Invocation = "auto"
)

// Request is sent from the editor plugin to the daemon.
type Request struct {
	// RequestID is assigned by the editor and echoed back in the response.
	RequestID int `json:"request_id"`
	// Buffer is a snapshot of the whole document text.
	Buffer string `json:"buffer"`
	// CursorOffset is the byte offset of the cursor within Buffer.
	CursorOffset int `json:"cursor_offset"`
	// FileName is the document's file name or extension (e.g. "main.go", ".go").
	FileName string `json:"file_name"`
	// Invocation tells whether the user explicitly asked for a completion.
	Invocation Invocation `json:"invocation"`
}

// Candidate is a single insertable completion.
type Candidate struct {
	// Text is inserted at the cursor position.
	Text string `json:"text"`
}

// Response is sent from the daemon back to the editor plugin.
// At most one of Candidate and Error is set. Both are nil when the
// request was skipped or the provider returned blank text.
type Response struct {
	// RequestID is echoed from the request.
	RequestID int `json:"request_id"`
	// Candidate is the completion to offer, if any.
	Candidate *Candidate `json:"candidate,omitempty"`
	// Skipped names the reason the pipeline did not run (e.g. "disabled").
	Skipped string `json:"skipped,omitempty"`
	// Error is set when the provider call failed.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side failure returned to the editor.
type Error struct {
	// Code is a machine-readable identifier ("api_error", "transport_error", "request_error").
	Code string `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

// ConfigRequest is sent by the editor for configuration operations.
type ConfigRequest struct {
	// Action is one of "get", "reload", "defaults" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	Config   *Config  `json:"config,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    *Error   `json:"error,omitempty"`
}
