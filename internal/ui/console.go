// Where: cli/internal/ui/console.go
// What: Console output helpers for consistent CLI UX.
// Why: Standardize emojis, indentation, and structure across commands.
package ui

import (
	"fmt"
	"io"
	"strings"
)

// Console provides helper methods for formatted output.
type Console struct {
	Out          io.Writer
	EmojiEnabled bool
}

// New creates a new Console writing to the provided writer.
// A nil writer discards output.
func New(out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{Out: out, EmojiEnabled: true}
}

// Header prints a section header with an emoji.
// Example: 📋 Creating collections...
func (c *Console) Header(emoji, title string) {
	fmt.Fprintf(c.Out, "%s%s\n", c.emojiPrefix(emoji), title)
}

// BlockStart prints a blank line followed by a header.
func (c *Console) BlockStart(emoji, title string) {
	fmt.Fprintln(c.Out)
	c.Header(emoji, title)
}

// Item prints a key-value item with indentation.
// Example:    Database:          restaurant-db
func (c *Console) Item(key string, value any) {
	fmt.Fprintf(c.Out, "   %-18s %v\n", key+":", value)
}

// ItemPlain prints a generic indented line.
func (c *Console) ItemPlain(msg string) {
	fmt.Fprintf(c.Out, "   %s\n", msg)
}

// Success prints a success message with a checkmark.
func (c *Console) Success(msg string) {
	c.line(0, "✅", msg)
}

// Exists prints an "already there" message.
func (c *Console) Exists(msg string) {
	c.line(0, "📋", msg)
}

// Fail prints a failure message.
func (c *Console) Fail(msg string) {
	c.line(0, "❌", msg)
}

// Warn prints a warning message.
func (c *Console) Warn(msg string) {
	c.line(0, "⚠️", msg)
}

// Info prints an info message with an arrow.
func (c *Console) Info(msg string) {
	c.line(0, "➜", msg)
}

// Nested returns a console that indents every status line by two spaces.
func (c *Console) Nested() *Console {
	return &Console{Out: &indentWriter{out: c.Out, prefix: "  "}, EmojiEnabled: c.EmojiEnabled}
}

func (c *Console) line(indent int, emoji, msg string) {
	fmt.Fprintf(c.Out, "%s%s%s\n", strings.Repeat(" ", indent), c.emojiPrefix(emoji), msg)
}

func (c *Console) emojiPrefix(emoji string) string {
	if !c.EmojiEnabled || emoji == "" {
		return ""
	}
	return emoji + " "
}

type indentWriter struct {
	out    io.Writer
	prefix string
}

func (w *indentWriter) Write(p []byte) (int, error) {
	lines := strings.SplitAfter(string(p), "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line != "\n" {
			b.WriteString(w.prefix)
		}
		b.WriteString(line)
	}
	if _, err := io.WriteString(w.out, b.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}
