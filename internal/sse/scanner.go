// Package sse provides a reader for Server-Sent Event payloads as emitted by
// the chat providers' streaming endpoints.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize is the per-line scanner limit. The bufio default of 64 KiB is
// too small for large events such as long tool-call arguments.
const maxLineSize = 1 << 20

// Scanner reads newline-delimited SSE frames. It handles multi-line data
// fields, skips comments and blank lines, and treats the [DONE] sentinel as
// end of stream.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{scanner: sc}
}

// Next returns the next data payload. Consecutive data lines of one event are
// joined with newlines. Returns io.EOF at end of input and when the [DONE]
// sentinel arrives.
func (s *Scanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line ends an event; flush what we have.
		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
		}
		// Other fields (event:, id:, retry:) are ignored.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse read: %w", err)
	}
	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}
	return "", io.EOF
}
