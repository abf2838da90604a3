package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorLevel tells a problem of the script from a broken generator
type ErrorLevel int

const (
	LevelError ErrorLevel = iota
	LevelFatal
)

func (l ErrorLevel) String() string {
	if l == LevelFatal {
		return "fatal error"
	}
	return "error"
}

// ErrorCategory is the phase that rejected the script
type ErrorCategory int

const (
	CategorySyntax   ErrorCategory = iota // lexer and parser
	CategorySemantic                      // scope resolution
	CategoryLimit                         // a frame shape the targets cannot encode
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategorySemantic:
		return "semantic"
	case CategoryLimit:
		return "limit"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation is a 1-based position in a script. Length is the width
// of the token the caret marks.
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// CompilerError aborts the compilation of one function. The driver reports
// it; generated code never observes it.
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Hint     string
}

func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s error: %s", e.Location, e.Category, e.Message)
}

// ansi wraps text in an escape sequence when color is on
type ansi bool

func (a ansi) paint(code, text string) string {
	if !a {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

// Render formats e against the script it was raised for: the message, the
// location, the offending line with a caret under the token and the hint.
func (e CompilerError) Render(source string, useColor bool) string {
	c := ansi(useColor)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", c.paint("1;31", e.Level.String()), e.Message)
	fmt.Fprintf(&sb, "  %s %s\n", c.paint("1;34", "-->"), e.Location)

	if line, ok := sourceLine(source, e.Location.Line); ok {
		num := strconv.Itoa(e.Location.Line)
		gutter := strings.Repeat(" ", len(num)+1)
		fmt.Fprintf(&sb, "%s|\n%s | %s\n", gutter, num, line)
		if e.Location.Column > 0 {
			width := max(e.Location.Length, 1)
			caret := strings.Repeat("^", width)
			fmt.Fprintf(&sb, "%s| %s%s\n", gutter, strings.Repeat(" ", e.Location.Column-1), c.paint("1;31", caret))
		}
	}

	if e.Hint != "" {
		fmt.Fprintf(&sb, "   %s %s\n", c.paint("1;32", "help:"), e.Hint)
	}
	if e.Category == CategoryInternal {
		fmt.Fprintf(&sb, "   %s the code generator broke one of its own invariants\n", c.paint("1;36", "note:"))
	}
	return sb.String()
}

// sourceLine returns line n of source, without its line break
func sourceLine(source string, n int) (string, bool) {
	if n <= 0 {
		return "", false
	}
	for i := 1; len(source) > 0; i++ {
		line, rest, _ := strings.Cut(source, "\n")
		if i == n {
			return strings.TrimSuffix(line, "\r"), true
		}
		source = rest
	}
	return "", false
}

// SyntaxError is a lexer or parser failure
func SyntaxError(message string, loc SourceLocation) CompilerError {
	return CompilerError{Level: LevelError, Category: CategorySyntax, Message: message, Location: loc}
}

// UnexpectedTokenError reports a token the grammar does not allow here
func UnexpectedTokenError(expected, got string, loc SourceLocation) CompilerError {
	return SyntaxError(fmt.Sprintf("expected %s, got %s", expected, got), loc)
}

// RedeclarationError reports an illegal redeclaration of a lexical binding
func RedeclarationError(name string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategorySemantic,
		Message:  fmt.Sprintf("identifier '%s' has already been declared", name),
		Location: loc,
	}
}

// UndefinedLabelError reports a break or continue naming no enclosing
// label. The closest visible label, if any, becomes the hint.
func UndefinedLabelError(label string, visible []string, loc SourceLocation) CompilerError {
	e := SyntaxError(fmt.Sprintf("undefined label %q", label), loc)
	if near := Suggest(label, visible, 1); len(near) > 0 {
		e.Hint = fmt.Sprintf("did you mean %q?", near[0])
	}
	return e
}

// NestingError reports that compiling a function recursed past limit
func NestingError(limit int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryLimit,
		Message:  fmt.Sprintf("maximum nesting depth %d exceeded during compilation", limit),
		Location: loc,
		Hint:     "raise FULLGEN_MAX_DEPTH or max_depth in fullgen.yaml",
	}
}

// ParameterLimitError reports a function whose return sequence cannot pop
// its arguments on every target
func ParameterLimitError(name string, count, limit int, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryLimit,
		Message:  fmt.Sprintf("function %s declares %d parameters, at most %d are supported", name, count, limit),
		Location: loc,
		Hint:     "pass the values in an array or an object",
	}
}

// InternalError reports a broken invariant of the generator
func InternalError(message string, loc SourceLocation) CompilerError {
	return CompilerError{Level: LevelFatal, Category: CategoryInternal, Message: message, Location: loc}
}
