// Completion: 95% - Lexer complete for the supported subset, no regexp literals
package syntax

import (
	"strconv"
	"strings"

	"github.com/xyproto/fullgen/internal/engine"
)

// TokenType classifies a token
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_IDENT
	TOKEN_KEYWORD
	TOKEN_NUMBER
	TOKEN_STRING
	TOKEN_PUNCT
	TOKEN_ILLEGAL
)

var keywords = map[string]bool{
	"var": true, "let": true, "const": true, "function": true, "return": true,
	"if": true, "else": true, "while": true, "do": true, "for": true, "in": true,
	"break": true, "continue": true, "switch": true, "case": true, "default": true,
	"throw": true, "try": true, "catch": true, "finally": true, "debugger": true,
	"true": true, "false": true, "null": true, "this": true, "typeof": true,
	"void": true, "delete": true, "instanceof": true, "new": true, "with": true,
}

// Punctuators, longest first so that greedy matching works
var punctuators = []string{
	">>>=", "===", "!==", ">>>", "<<=", ">>=",
	"==", "!=", "<=", ">=", "&&", "||", "++", "--", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"{", "}", "(", ")", "[", "]", ";", ",", ".", "?", ":",
	"<", ">", "+", "-", "*", "/", "%", "&", "|", "^", "!", "~", "=",
}

// Token is one lexical token
type Token struct {
	Type          TokenType
	Value         string
	Num           float64
	Loc           engine.SourceLocation
	NewlineBefore bool // a line terminator precedes the token
}

func (t Token) String() string {
	switch t.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_STRING:
		return strconv.Quote(t.Value)
	default:
		return "'" + t.Value + "'"
	}
}

// Is reports whether the token is the given punctuator or keyword
func (t Token) Is(value string) bool {
	return (t.Type == TOKEN_PUNCT || t.Type == TOKEN_KEYWORD) && t.Value == value
}

// Lexer splits source text into tokens
type Lexer struct {
	input  string
	file   string
	pos    int
	line   int
	column int
}

// NewLexer creates a lexer over input
func NewLexer(file, input string) *Lexer {
	return &Lexer{input: input, file: file, line: 1, column: 1}
}

func (l *Lexer) peek() byte {
	if l.pos < len(l.input) {
		return l.input[l.pos]
	}
	return 0
}

func (l *Lexer) peekAhead(n int) byte {
	if l.pos+n < len(l.input) {
		return l.input[l.pos+n]
	}
	return 0
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
}

func (l *Lexer) location(length int) engine.SourceLocation {
	return engine.SourceLocation{File: l.file, Line: l.line, Column: l.column, Length: length}
}

// skipSpace skips whitespace and comments, reporting whether a newline was crossed
func (l *Lexer) skipSpace() (newline bool, err error) {
	for l.pos < len(l.input) {
		ch := l.peek()
		switch {
		case ch == '\n':
			newline = true
			l.advance()
		case ch == ' ' || ch == '\t' || ch == '\r':
			l.advance()
		case ch == '/' && l.peekAhead(1) == '/':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekAhead(1) == '*':
			start := l.location(2)
			l.advance()
			l.advance()
			for {
				if l.pos >= len(l.input) {
					return newline, engine.SyntaxError("unterminated comment", start)
				}
				if l.peek() == '*' && l.peekAhead(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				if l.peek() == '\n' {
					newline = true
				}
				l.advance()
			}
		default:
			return newline, nil
		}
	}
	return newline, nil
}

// NextToken returns the next token
func (l *Lexer) NextToken() (Token, error) {
	newline, err := l.skipSpace()
	if err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.input) {
		return Token{Type: TOKEN_EOF, Loc: l.location(0), NewlineBefore: newline}, nil
	}

	ch := l.peek()
	loc := l.location(1)
	tok := Token{Loc: loc, NewlineBefore: newline}

	switch {
	case isIdentStart(ch):
		start := l.pos
		for l.pos < len(l.input) && isIdentPart(l.peek()) {
			l.advance()
		}
		tok.Value = l.input[start:l.pos]
		tok.Type = TOKEN_IDENT
		if keywords[tok.Value] {
			tok.Type = TOKEN_KEYWORD
		}
	case isDigit(ch) || (ch == '.' && isDigit(l.peekAhead(1))):
		return l.number(tok)
	case ch == '"' || ch == '\'':
		return l.str(tok)
	default:
		for _, p := range punctuators {
			if strings.HasPrefix(l.input[l.pos:], p) {
				for range p {
					l.advance()
				}
				tok.Type = TOKEN_PUNCT
				tok.Value = p
				tok.Loc.Length = len(p)
				return tok, nil
			}
		}
		return tok, engine.SyntaxError("unexpected character '"+string(ch)+"'", loc)
	}
	tok.Loc.Length = len(tok.Value)
	return tok, nil
}

func (l *Lexer) number(tok Token) (Token, error) {
	start := l.pos
	if l.peek() == '0' && (l.peekAhead(1) == 'x' || l.peekAhead(1) == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		v, err := strconv.ParseUint(l.input[start+2:l.pos], 16, 64)
		if err != nil {
			return tok, engine.SyntaxError("invalid hex literal", tok.Loc)
		}
		tok.Type = TOKEN_NUMBER
		tok.Value = l.input[start:l.pos]
		tok.Num = float64(v)
		return tok, nil
	}
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	text := l.input[start:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return tok, engine.SyntaxError("invalid number literal "+text, tok.Loc)
	}
	if isIdentStart(l.peek()) {
		return tok, engine.SyntaxError("identifier starts immediately after number", l.location(1))
	}
	tok.Type = TOKEN_NUMBER
	tok.Value = text
	tok.Num = v
	tok.Loc.Length = len(text)
	return tok, nil
}

func (l *Lexer) str(tok Token) (Token, error) {
	quote := l.peek()
	l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.input) || l.peek() == '\n' {
			return tok, engine.SyntaxError("unterminated string literal", tok.Loc)
		}
		ch := l.peek()
		if ch == quote {
			l.advance()
			break
		}
		if ch == '\\' {
			l.advance()
			esc := l.peek()
			l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case 'x':
				if !isHexDigit(l.peek()) || !isHexDigit(l.peekAhead(1)) {
					return tok, engine.SyntaxError("invalid hex escape", l.location(1))
				}
				v, _ := strconv.ParseUint(l.input[l.pos:l.pos+2], 16, 8)
				l.advance()
				l.advance()
				sb.WriteRune(rune(v))
			case 'u':
				if l.pos+4 > len(l.input) {
					return tok, engine.SyntaxError("invalid unicode escape", l.location(1))
				}
				v, err := strconv.ParseUint(l.input[l.pos:l.pos+4], 16, 16)
				if err != nil {
					return tok, engine.SyntaxError("invalid unicode escape", l.location(1))
				}
				for i := 0; i < 4; i++ {
					l.advance()
				}
				sb.WriteRune(rune(v))
			default:
				sb.WriteByte(esc)
			}
			continue
		}
		sb.WriteByte(ch)
		l.advance()
	}
	tok.Type = TOKEN_STRING
	tok.Value = sb.String()
	return tok, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
