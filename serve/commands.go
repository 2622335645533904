package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	fimlet "github.com/michaai/fimlet"
	"github.com/michaai/fimlet/fim"
)

type completeParams struct {
	File   string
	Name   string
	Offset int
	Auto   bool
}

// runComplete runs the pipeline once over a file (or stdin) and prints
// the candidate text. Skips print nothing; provider failures are errors.
func runComplete(ctx context.Context, stdin io.Reader, out io.Writer, p completeParams) error {
	var (
		data []byte
		err  error
	)
	if p.File != "" {
		data, err = os.ReadFile(p.File)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read buffer: %w", err)
	}

	cfg, err := fimlet.LoadConfig()
	if err != nil {
		return err
	}

	req := &fimlet.Request{
		RequestID:    1,
		Buffer:       string(data),
		CursorOffset: p.Offset,
		FileName:     p.Name,
		Invocation:   fimlet.InvocationExplicit,
	}
	if req.FileName == "" && p.File != "" {
		req.FileName = filepath.Base(p.File)
	}
	if req.CursorOffset < 0 {
		req.CursorOffset = len(req.Buffer)
	}
	if p.Auto {
		req.Invocation = fimlet.InvocationAuto
	}

	engine := fim.NewEngine()
	defer engine.Close()

	resp := engine.Complete(ctx, req, fimlet.Snapshot(cfg))
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Candidate != nil {
		fmt.Fprintln(out, resp.Candidate.Text)
	}
	return nil
}

// printConfig writes the effective (or default) configuration as TOML.
// A configured API key is masked.
func printConfig(out io.Writer, defaultsOnly bool) error {
	var cfg fimlet.Config
	if defaultsOnly {
		cfg = *fimlet.DefaultConfig()
	} else {
		loaded, err := fimlet.LoadConfig()
		if err != nil {
			return err
		}
		cfg = fimlet.Snapshot(loaded)
	}
	if cfg.APIKey != "" {
		cfg.APIKey = "***"
	}
	return toml.NewEncoder(out).Encode(cfg)
}

// runValidate checks the config file at path (the active config when empty).
func runValidate(out io.Writer, path string) error {
	if path == "" {
		path = fimlet.ConfigPath()
	}

	problems, err := validateConfig(path)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Fprintf(out, "%s is valid\n", path)
		return nil
	}

	fmt.Fprintf(out, "%s has %d problem(s):\n", path, len(problems))
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return fmt.Errorf("invalid configuration: %s", path)
}
