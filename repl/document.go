package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// document is the text the REPL completes against. Typed lines are spliced
// in at cursor, so a line can be tested in the middle of a real file.
type document struct {
	text     string
	cursor   int // byte offset of the insertion point
	fileName string
}

func newDocument() *document {
	return &document{fileName: "scratch.go"}
}

// open loads path, placing the cursor per pos ("" means end of file).
func (d *document) open(path, pos string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d.text = string(data)
	d.fileName = filepath.Base(path)
	d.cursor = len(d.text)
	if pos != "" {
		return d.seek(pos)
	}
	return nil
}

// seek moves the cursor to a byte offset ("120") or to a 1-based
// line:column ("12:5"); the column defaults to 1 ("12:").
func (d *document) seek(pos string) error {
	if lineStr, colStr, ok := strings.Cut(pos, ":"); ok {
		line, err := strconv.Atoi(lineStr)
		if err != nil || line < 1 {
			return fmt.Errorf("invalid line %q", lineStr)
		}
		col := 1
		if colStr != "" {
			if col, err = strconv.Atoi(colStr); err != nil || col < 1 {
				return fmt.Errorf("invalid column %q", colStr)
			}
		}
		d.cursor = lineColOffset(d.text, line, col)
		return nil
	}
	off, err := strconv.Atoi(pos)
	if err != nil {
		return fmt.Errorf("invalid offset %q", pos)
	}
	d.cursor = max(0, min(off, len(d.text)))
	return nil
}

// compose splices line into the document at the cursor and returns the
// resulting buffer and the absolute cursor offset.
func (d *document) compose(line string, lineCursor int) (string, int) {
	return d.text[:d.cursor] + line + d.text[d.cursor:], d.cursor + lineCursor
}

// commit inserts text at the cursor and moves the cursor past it.
func (d *document) commit(text string) {
	d.text = d.text[:d.cursor] + text + d.text[d.cursor:]
	d.cursor += len(text)
}

// lineColOffset converts a 1-based line and byte column to an offset,
// clamped to the line and the document.
func lineColOffset(text string, line, col int) int {
	off := 0
	for i := 1; i < line; i++ {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return len(text)
		}
		off += nl + 1
	}
	lineEnd := len(text)
	if nl := strings.IndexByte(text[off:], '\n'); nl >= 0 {
		lineEnd = off + nl
	}
	return min(off+col-1, lineEnd)
}
