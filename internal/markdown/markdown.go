// Package markdown converts the lightweight markup used in chat messages
// into structural HTML for the rendering boundary. It supports bold,
// italic, inline code, ordered/unordered lists, and paragraphs; anything
// heavier is passed through as escaped text.
package markdown

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	// Single-asterisk emphasis. Runs after the bold pass so double
	// asterisks are already consumed.
	italicRe = regexp.MustCompile(`\*([^*\n]+)\*`)
	codeRe   = regexp.MustCompile("`([^`]+)`")

	orderedItemRe   = regexp.MustCompile(`^\d+\.\s+(.*)$`)
	unorderedItemRe = regexp.MustCompile(`^[-•*]\s+(.*)$`)
)

// Render transforms raw message text into HTML. Input is escaped first,
// so the output carries no markup other than what Render itself emits.
func Render(input string) string {
	if input == "" {
		return ""
	}

	text := html.EscapeString(input)
	text = renderInline(text)
	return renderBlocks(text)
}

// renderInline applies span-level formatting. Bold must run before
// italic or the italic pattern would eat half of each ** marker.
func renderInline(text string) string {
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "<em>$1</em>")
	text = codeRe.ReplaceAllString(text, "<code>$1</code>")
	return text
}

type listKind int

const (
	listNone listKind = iota
	listOrdered
	listUnordered
)

// renderBlocks walks the inline-formatted text line by line, grouping
// consecutive list items into a single <ol> or <ul> and wrapping plain
// lines in paragraphs.
func renderBlocks(text string) string {
	var (
		sb   strings.Builder
		open = listNone
	)

	closeList := func() {
		switch open {
		case listOrdered:
			sb.WriteString("</ol>")
		case listUnordered:
			sb.WriteString("</ul>")
		}
		open = listNone
	}

	for _, line := range strings.Split(text, "\n") {
		if m := orderedItemRe.FindStringSubmatch(line); m != nil {
			if open == listUnordered {
				closeList()
			}
			if open != listOrdered {
				sb.WriteString("<ol>")
				open = listOrdered
			}
			sb.WriteString("<li>" + m[1] + "</li>")
			continue
		}

		if m := unorderedItemRe.FindStringSubmatch(line); m != nil {
			if open == listOrdered {
				closeList()
			}
			if open != listUnordered {
				sb.WriteString("<ul>")
				open = listUnordered
			}
			sb.WriteString("<li>" + m[1] + "</li>")
			continue
		}

		if strings.TrimSpace(line) == "" {
			// A blank line only terminates unordered lists; ordered
			// lists survive blank separators.
			if open == listUnordered {
				closeList()
			}
			continue
		}

		closeList()
		sb.WriteString("<p>" + line + "</p>")
	}

	closeList()
	return sb.String()
}
