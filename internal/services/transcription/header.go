package transcription

import "strings"

const (
	labelSeparator = "："  // U+FF1A
	fieldSeparator = "　" // U+3000
)

// Field is one label/value pair of the metadata header.
type Field struct {
	Label string
	Value string
}

// HeaderLine holds the fields rendered on one text line.
type HeaderLine []Field

// Header is the ordered metadata placed above the transcript.
type Header []HeaderLine

// Present reports whether the header has at least one line.
func (h Header) Present() bool {
	return len(h) > 0
}

// RenderHeader renders each line as "label：value" entries joined by a
// full-width space, one line per HeaderLine.
func RenderHeader(h Header) string {
	lines := make([]string, 0, len(h))
	for _, line := range h {
		parts := make([]string, 0, len(line))
		for _, f := range line {
			parts = append(parts, f.Label+labelSeparator+f.Value)
		}
		lines = append(lines, strings.Join(parts, fieldSeparator))
	}
	return strings.Join(lines, "\n")
}

// Compose builds the final artifact: header, a blank line and the body when
// a header is present, otherwise the body alone. The body is never altered.
func Compose(body string, h Header) *Result {
	if !h.Present() {
		return &Result{Body: body, Composed: body}
	}
	headerText := RenderHeader(h)
	return &Result{
		Body:       body,
		HeaderText: headerText,
		HasHeader:  true,
		Composed:   headerText + "\n\n" + body,
	}
}
