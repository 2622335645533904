package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// lineBuffer is the editable line with a byte cursor.
type lineBuffer struct {
	buf []byte
	pos int
}

func (l *lineBuffer) String() string { return string(l.buf) }

func (l *lineBuffer) reset() {
	l.buf = l.buf[:0]
	l.pos = 0
}

func (l *lineBuffer) insert(ch []byte) {
	l.buf = append(l.buf, make([]byte, len(ch))...)
	copy(l.buf[l.pos+len(ch):], l.buf[l.pos:len(l.buf)-len(ch)])
	copy(l.buf[l.pos:], ch)
	l.pos += len(ch)
}

func (l *lineBuffer) backspace() {
	if l.pos == 0 {
		return
	}
	size := prevRuneLen(l.buf, l.pos)
	copy(l.buf[l.pos-size:], l.buf[l.pos:])
	l.buf = l.buf[:len(l.buf)-size]
	l.pos -= size
}

func (l *lineBuffer) deleteForward() {
	if l.pos >= len(l.buf) {
		return
	}
	_, size := utf8.DecodeRune(l.buf[l.pos:])
	copy(l.buf[l.pos:], l.buf[l.pos+size:])
	l.buf = l.buf[:len(l.buf)-size]
}

func (l *lineBuffer) left() {
	l.pos -= prevRuneLen(l.buf, l.pos)
}

func (l *lineBuffer) right() {
	if l.pos < len(l.buf) {
		_, size := utf8.DecodeRune(l.buf[l.pos:])
		l.pos += size
	}
}

func (l *lineBuffer) home() { l.pos = 0 }
func (l *lineBuffer) end()  { l.pos = len(l.buf) }

// tail is the number of runes right of the cursor.
func (l *lineBuffer) tail() int {
	return utf8.RuneCount(l.buf[l.pos:])
}

// Editor is a minimal line editor with cursor tracking.
// It reads from /dev/tty so it works even when stdout is redirected.
type Editor struct {
	tty      *os.File
	oldState *term.State
	line     lineBuffer
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{tty: tty, oldState: old}, nil
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the tty file for writing prompts/UI.
func (e *Editor) Tty() *os.File {
	return e.tty
}

// ReadLine displays the prompt and reads a line, returning the text and the
// byte offset of the cursor within it. Ctrl-D on an empty line returns io.EOF.
func (e *Editor) ReadLine(prompt string) (string, int, error) {
	return readLine(e.tty, e.tty, &e.line, prompt)
}

// readLine runs the key loop over in, echoing to out.
func readLine(in io.Reader, out io.Writer, l *lineBuffer, prompt string) (string, int, error) {
	l.reset()
	redraw(out, l, prompt)

	var b [1]byte
	for {
		if _, err := in.Read(b[:]); err != nil {
			return "", 0, err
		}

		switch b[0] {
		case 3: // Ctrl-C
			fmt.Fprintf(out, "\r\n")
			return "", 0, ErrInterrupt

		case 4: // Ctrl-D
			if len(l.buf) == 0 {
				fmt.Fprintf(out, "\r\n")
				return "", 0, io.EOF
			}
			l.deleteForward()

		case 13, 10: // Enter
			fmt.Fprintf(out, "\r\n")
			return l.String(), l.pos, nil

		case 127, 8: // Backspace / Ctrl-H
			l.backspace()

		case 1: // Ctrl-A
			l.home()

		case 5: // Ctrl-E
			l.end()

		case 2: // Ctrl-B
			l.left()

		case 6: // Ctrl-F
			l.right()

		case 21: // Ctrl-U
			l.reset()

		case 27:
			readEscape(in, l)

		default:
			if b[0] >= 32 {
				ch := []byte{b[0]}
				if n := utf8RuneLen(b[0]) - 1; n > 0 {
					tmp := make([]byte, n)
					io.ReadFull(in, tmp)
					ch = append(ch, tmp...)
				}
				l.insert(ch)
			}
		}

		redraw(out, l, prompt)
	}
}

// readEscape consumes a CSI sequence and applies it to l.
func readEscape(in io.Reader, l *lineBuffer) {
	var esc [3]byte
	if n, _ := in.Read(esc[:1]); n == 0 || esc[0] != '[' {
		return
	}
	if n, _ := in.Read(esc[1:2]); n == 0 {
		return
	}
	switch esc[1] {
	case 'D':
		l.left()
	case 'C':
		l.right()
	case 'H':
		l.home()
	case 'F':
		l.end()
	case '3', '1', '4': // \x1b[3~ \x1b[1~ \x1b[4~
		in.Read(esc[2:3])
		switch esc[1] {
		case '3':
			l.deleteForward()
		case '1':
			l.home()
		case '4':
			l.end()
		}
	}
}

// redraw clears the current line and redraws prompt + buffer with cursor.
func redraw(out io.Writer, l *lineBuffer, prompt string) {
	fmt.Fprintf(out, "\r\x1b[K%s%s", prompt, l.String())
	if n := l.tail(); n > 0 {
		fmt.Fprintf(out, "\x1b[%dD", n)
	}
}

// prevRuneLen returns the byte size of the rune before pos.
func prevRuneLen(buf []byte, pos int) int {
	if pos <= 0 {
		return 0
	}
	_, size := utf8.DecodeLastRune(buf[:pos])
	return size
}

// utf8RuneLen returns the expected byte length of a UTF-8 sequence
// from its leading byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	}
	return 4
}
