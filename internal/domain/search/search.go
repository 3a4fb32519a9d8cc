// Package search defines the web-search result model plus the formatter and
// its inverse parser. The two functions share one output grammar: a line
// "N. **Title**" opens a record, "Source: URL" closes its url, everything
// else accumulates into the snippet. Change them together.
package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxResults caps how many results a single query may contribute.
const MaxResults = 5

// Result is one web-search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// FormatResults renders results as the text block handed to the language
// model. At most MaxResults entries are included. The header records when the
// search ran so the model can reason about freshness.
func FormatResults(results []Result, now time.Time) string {
	if len(results) == 0 {
		return "No results found."
	}
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search performed on %s:\n", now.Format("January 2, 2006"))
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. **%s**\n   %s\n   Source: %s\n", i+1, r.Title, r.Snippet, r.URL)
	}
	return b.String()
}

var (
	titleLine  = regexp.MustCompile(`^\d+\.\s+\*\*(.+?)\*\*`)
	sourceLine = regexp.MustCompile(`^Source:\s*(.+)$`)
)

// ExtractSources parses a formatted result block back into records. It is the
// left inverse of FormatResults: line-oriented, tolerant of extra text, and
// only emits a record once its title line has been seen.
func ExtractSources(text string) []Result {
	var (
		sources []Result
		current *Result
	)

	flush := func() {
		if current != nil {
			sources = append(sources, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := titleLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &Result{Title: m[1]}
			continue
		}

		if m := sourceLine.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.URL = strings.TrimSpace(m[1])
			}
			continue
		}

		if current != nil {
			if current.Snippet != "" {
				current.Snippet += " "
			}
			current.Snippet += line
		}
	}
	// A trailing record never closed by a Source line is noise, not a hit.
	if current != nil && current.URL != "" {
		sources = append(sources, *current)
	}

	return sources
}
