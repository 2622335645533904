package fim

import (
	"strings"
	"unicode/utf8"
)

// Window is the bounded text around the cursor that is sent to the model.
type Window struct {
	// Prefix holds up to N full lines before the cursor line, followed by
	// the cursor line up to the cursor.
	Prefix string
	// Suffix holds the rest of the cursor line, followed by up to N full
	// lines after it.
	Suffix string
}

// Empty reports whether there is nothing around the cursor to send.
func (w Window) Empty() bool {
	return w.Prefix == "" && w.Suffix == ""
}

// Extract builds the context window around offset in buffer, taking at most
// contextLines full lines on each side of the cursor line. Lines are
// separated by '\n'. offset is a byte offset; it is clamped to the buffer
// and moved back to the start of the rune it falls in. A negative
// contextLines is treated as zero.
func Extract(buffer string, offset, contextLines int) Window {
	offset = min(max(offset, 0), len(buffer))
	for offset > 0 && offset < len(buffer) && !utf8.RuneStart(buffer[offset]) {
		offset--
	}
	contextLines = max(contextLines, 0)

	lines := strings.Split(buffer, "\n")
	cur := strings.Count(buffer[:offset], "\n")
	lineStart := strings.LastIndexByte(buffer[:offset], '\n') + 1
	lineEnd := lineStart + len(lines[cur])

	var before []string
	for i := max(0, cur-contextLines); i < cur; i++ {
		before = append(before, lines[i])
	}
	if offset > 0 {
		before = append(before, buffer[lineStart:offset])
	}

	var after []string
	if offset < len(buffer) {
		after = append(after, buffer[offset:lineEnd])
	}
	last := min(len(lines)-1, cur+contextLines)
	for i := cur + 1; i <= last; i++ {
		after = append(after, lines[i])
	}

	return Window{
		Prefix: strings.Join(before, "\n"),
		Suffix: strings.Join(after, "\n"),
	}
}
