package tinkerblog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseError describes a problem in a post source file with enough context
// for an author to fix it.
type ParseError struct {
	File    string // Source file path
	Line    int    // Line number (1-indexed)
	Column  int    // Column number (1-indexed, optional)
	Message string // Error message
	Hint    string // Helpful suggestion
	Related string // Related information, e.g. the code block the error came from

	cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return e.Format()
}

// Unwrap returns the underlying error, if any.
func (e *ParseError) Unwrap() error {
	return e.cause
}

// Format returns the message with the offending lines of the file.
func (e *ParseError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "❌ Error in %s\n\n", e.File)
	fmt.Fprintf(&b, "Line %d: %s\n", e.Line, e.Message)
	if e.cause != nil {
		fmt.Fprintf(&b, "  %v\n", e.cause)
	}

	if excerpt := e.sourceExcerpt(); excerpt != "" {
		b.WriteString(excerpt)
	}

	if e.Hint != "" {
		fmt.Fprintf(&b, "\n💡 Tip: %s\n", e.Hint)
	}
	if e.Related != "" {
		fmt.Fprintf(&b, "\n🔗 %s\n", e.Related)
	}

	return b.String()
}

// sourceExcerpt shows two lines around the error line, with a caret under
// Column when it is known.
func (e *ParseError) sourceExcerpt() string {
	if e.File == "" {
		return ""
	}
	file, err := os.Open(e.File)
	if err != nil {
		return ""
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if e.Line < 1 || e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for i := max(1, e.Line-2); i <= min(len(lines), e.Line+2); i++ {
		prefix := fmt.Sprintf("  %2d | ", i)
		b.WriteString(prefix + lines[i-1] + "\n")
		if i == e.Line && e.Column > 0 {
			b.WriteString(strings.Repeat(" ", len(prefix)+e.Column-1) + "^\n")
		}
	}
	return b.String()
}

// NewParseError creates a new ParseError.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{
		File:    file,
		Line:    line,
		Message: message,
	}
}

// WithColumn adds column information to the error.
func (e *ParseError) WithColumn(col int) *ParseError {
	e.Column = col
	return e
}

// WithHint adds a helpful hint to the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithRelated adds related information to the error.
func (e *ParseError) WithRelated(related string) *ParseError {
	e.Related = related
	return e
}

// WithCause records the error that triggered this one.
func (e *ParseError) WithCause(err error) *ParseError {
	e.cause = err
	return e
}
