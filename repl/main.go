// Command fimlet-repl is an interactive test REPL for fimlet completions.
// Each typed line is spliced into a document at its insertion point and
// completed at the line's cursor position. Structured TOML results are
// written to stdout.
//
// Usage:
//
//	./fimlet-repl             # interactive, TOML on screen
//	./fimlet-repl > log.toml  # prompt on screen, TOML to file
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	fimlet "github.com/michaai/fimlet"
	"github.com/michaai/fimlet/fim"
)

const prompt = "> "

const help = `commands:
  :open <path>[@pos]  load a file; pos is an offset or line:col
  :at <pos>           move the insertion point
  :file <name>        set the file name seen by the trigger policy
  :auto               toggle automatic invocation
  :accept             insert the last line and its candidate
  :show               print the document around the insertion point
  :reload             re-read the config file
  :quit               exit
`

func main() {
	verbose := flag.Bool("verbose", false, "log pipeline decisions to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()
	ui := termWriter(tty)
	st := newStyles(tty)

	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintf(ui, "config error, using defaults: %v\n", err)
	}

	fmt.Fprint(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(ui, "fimlet repl\nendpoint: %s\nmodel: %s\n\n%s\n", cfg.Endpoint, cfg.Model, help)

	engine := fim.NewEngine()
	defer engine.Close()

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)

	doc := newDocument()
	invocation := fimlet.InvocationExplicit
	var last struct {
		line      string
		candidate string
	}
	reqID := 0

	for {
		text, cursor, err := editor.ReadLine(prompt)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(ui, "read error: %v\n", err)
			break
		}

		if text == "" {
			continue
		}

		if strings.HasPrefix(text, ":") {
			cmd, arg, _ := strings.Cut(strings.TrimPrefix(text, ":"), " ")
			arg = strings.TrimSpace(arg)
			switch cmd {
			case "q", "quit":
				return
			case "open":
				path, pos, _ := strings.Cut(arg, "@")
				if err := doc.open(path, pos); err != nil {
					fmt.Fprintf(ui, "error: %v\n", err)
					continue
				}
				fmt.Fprintf(ui, "%s: %d bytes, cursor %d\n", doc.fileName, len(doc.text), doc.cursor)
			case "at":
				if err := doc.seek(arg); err != nil {
					fmt.Fprintf(ui, "error: %v\n", err)
					continue
				}
				fmt.Fprintf(ui, "cursor %d\n", doc.cursor)
			case "file":
				doc.fileName = arg
			case "auto":
				if invocation == fimlet.InvocationAuto {
					invocation = fimlet.InvocationExplicit
				} else {
					invocation = fimlet.InvocationAuto
				}
				fmt.Fprintf(ui, "invocation: %s\n", invocation)
			case "accept":
				if last.line == "" {
					fmt.Fprintln(ui, "nothing to accept")
					continue
				}
				doc.commit(last.line + last.candidate)
				last.line, last.candidate = "", ""
				fmt.Fprintf(ui, "cursor %d\n", doc.cursor)
			case "show":
				fmt.Fprintln(ui, st.subtle.Render(doc.text[:doc.cursor])+st.candidate.Render("│")+st.subtle.Render(doc.text[doc.cursor:]))
			case "reload":
				if cfg, err = loadSettings(); err != nil {
					fmt.Fprintf(ui, "config error, using defaults: %v\n", err)
				}
				fmt.Fprintf(ui, "endpoint: %s\nmodel: %s\n", cfg.Endpoint, cfg.Model)
			default:
				fmt.Fprint(ui, help)
			}
			fmt.Fprintln(ui)
			continue
		}

		reqID++
		buffer, offset := doc.compose(text, cursor)
		req := &fimlet.Request{
			RequestID:    reqID,
			Buffer:       buffer,
			CursorOffset: offset,
			FileName:     doc.fileName,
			Invocation:   invocation,
		}

		result := engine.CompleteVerbose(context.Background(), req, cfg)
		resp := result.Response

		last.line, last.candidate = text, ""
		if resp.Candidate != nil {
			last.candidate = resp.Candidate.Text
		}

		fmt.Fprintf(ui, "  %s\n\n", st.summary(resp))

		// TOML output to stdout (crlfWriter handles raw mode).
		if err := writeEntry(out, text, req, cfg, result); err != nil {
			slog.Warn("failed to write entry", "error", err)
		}
	}
}

// loadSettings reads the config file and applies environment overrides.
// The defaults are returned alongside any error.
func loadSettings() (fimlet.Config, error) {
	cfg, err := fimlet.LoadConfig()
	if err != nil {
		return fimlet.Snapshot(nil), err
	}
	return fimlet.Snapshot(cfg), nil
}
