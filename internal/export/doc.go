// Package export renders a conversation transcript to standalone HTML,
// converting agent markdown with goldmark.
package export
