// ABOUTME: Transcript export to a standalone HTML document
// ABOUTME: Agent markdown is rendered via goldmark, user text is escaped verbatim

package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/askdeck/askdeck/internal/session"
)

const pageHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transcript — %s</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.turn { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 0.5rem; }
.user { background: #eef3fb; }
.agent { background: #f4f4f4; }
.meta { color: #777; font-size: 0.8rem; margin-bottom: 0.25rem; }
</style>
</head>
<body>
<h1>Transcript — %s</h1>
`

// WriteHTML writes the session's turns as a standalone HTML document.
// Agent turns may contain markdown and are converted; user turns are
// escaped and rendered verbatim.
func WriteHTML(w io.Writer, sessionKey string, turns []session.Turn) error {
	key := html.EscapeString(sessionKey)
	if _, err := fmt.Fprintf(w, pageHeader, key, key); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, turn := range turns {
		body, err := renderTurn(turn)
		if err != nil {
			return fmt.Errorf("rendering turn %s: %w", turn.ID, err)
		}

		_, err = fmt.Fprintf(w, "<div class=\"turn %s\">\n<div class=\"meta\">%s · %s</div>\n%s</div>\n",
			string(turn.Role),
			string(turn.Role),
			turn.CreatedAt.Format(time.RFC3339),
			body)
		if err != nil {
			return fmt.Errorf("writing turn: %w", err)
		}
	}

	if _, err := io.WriteString(w, "</body>\n</html>\n"); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

// renderTurn converts one turn's text to HTML.
func renderTurn(turn session.Turn) (string, error) {
	if turn.Role == session.RoleAgent {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(turn.Text), &buf); err != nil {
			return "", fmt.Errorf("converting markdown: %w", err)
		}
		return buf.String(), nil
	}
	return "<p>" + strings.ReplaceAll(html.EscapeString(turn.Text), "\n", "<br>") + "</p>\n", nil
}
