package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	fimlet "github.com/michaai/fimlet"
	"github.com/michaai/fimlet/fim"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

type entry struct {
	Request  entryRequest   `toml:"request"`
	Window   *entryWindow   `toml:"window,omitempty"`
	Payload  *entryPayload  `toml:"payload,omitempty"`
	Response *entryResponse `toml:"response"`
}

type entryRequest struct {
	Timestamp    time.Time `toml:"timestamp"`
	FileName     string    `toml:"file_name"`
	Input        string    `toml:"input"`
	CursorOffset int       `toml:"cursor_offset"`
	Invocation   string    `toml:"invocation"`
}

type entryWindow struct {
	Prefix string `toml:"prefix"`
	Suffix string `toml:"suffix"`
}

type entryPayload struct {
	Model       string  `toml:"model"`
	Prompt      string  `toml:"prompt"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

type entryResponse struct {
	Skipped   string `toml:"skipped,omitempty"`
	Raw       string `toml:"raw,omitempty"`
	Candidate string `toml:"candidate,omitempty"`
	ErrorCode string `toml:"error_code,omitempty"`
	Error     string `toml:"error,omitempty"`
}

// writeEntry writes a single TOML document describing one completion run.
func writeEntry(w io.Writer, input string, req *fimlet.Request, cfg fimlet.Config, result *fim.CompleteResult) error {
	e := entry{
		Request: entryRequest{
			Timestamp:    time.Now().Truncate(time.Second),
			FileName:     req.FileName,
			Input:        input,
			CursorOffset: req.CursorOffset,
			Invocation:   string(req.Invocation),
		},
		Response: &entryResponse{Skipped: result.Response.Skipped},
	}

	if result.Request != nil {
		e.Window = &entryWindow{Prefix: result.Window.Prefix, Suffix: result.Window.Suffix}
		e.Payload = &entryPayload{
			Model:       result.Request.Model,
			Prompt:      fim.NewBuilder(cfg.PromptTemplate, cfg.SendSuffix).Prompt(*result.Request),
			MaxTokens:   result.Request.MaxTokens,
			Temperature: result.Request.Temperature,
		}
	}
	if s, ok := result.Result.(fim.Success); ok {
		e.Response.Raw = s.Text
	}
	if c := result.Response.Candidate; c != nil {
		e.Response.Candidate = c.Text
	}
	if er := result.Response.Error; er != nil {
		e.Response.ErrorCode = er.Code
		e.Response.Error = er.Message
	}

	fmt.Fprintf(w, "# %s\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// styles renders the tty summary; colors are dropped when the tty has none.
type styles struct {
	candidate lipgloss.Style
	skipped   lipgloss.Style
	err       lipgloss.Style
	subtle    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		candidate: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		skipped:   r.NewStyle().Foreground(lipgloss.Color("11")),
		err:       r.NewStyle().Foreground(lipgloss.Color("9")),
		subtle:    r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// summary is the one-line outcome shown on the tty.
func (s styles) summary(resp *fimlet.Response) string {
	switch {
	case resp.Error != nil:
		return s.err.Render(fmt.Sprintf("error [%s]: %s", resp.Error.Code, resp.Error.Message))
	case resp.Skipped != "":
		return s.skipped.Render("skipped: " + resp.Skipped)
	case resp.Candidate != nil:
		return s.candidate.Render(resp.Candidate.Text)
	}
	return s.subtle.Render("(no candidate)")
}
