package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/xyproto/fullgen/internal/driver"
	"github.com/xyproto/fullgen/internal/syntax"
)

// replPrompt and replContinue are shown for a new input and for the
// following lines of an unfinished one
const (
	replPrompt   = "fullgen> "
	replContinue = "....... "
)

// replInput gathers lines until the brackets of the input balance
type replInput struct {
	lines []string
}

// add appends a line and returns the complete input once it balances
func (in *replInput) add(line string) (string, bool) {
	in.lines = append(in.lines, line)
	src := strings.Join(in.lines, "\n")
	if openBrackets(src) > 0 {
		return "", false
	}
	in.lines = nil
	return src, true
}

func (in *replInput) pending() bool { return len(in.lines) > 0 }
func (in *replInput) reset()        { in.lines = nil }

// openBrackets counts unclosed (, [ and { outside strings and comments
func openBrackets(src string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '"', '\'':
			for i++; i < len(src) && src[i] != c && src[i] != '\n'; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			} else if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					// an open comment keeps the input going
					return depth + 1
				}
				i += end + 3
			}
		}
	}
	return depth
}

// replResult is the global an expression input is stored in
const replResult = "__repl"

// evalInput runs one complete input. An input that is a single expression
// has its value printed unless it is undefined.
func evalInput(s *driver.Session, name, src string, stdout, stderr io.Writer, useColor bool) {
	expr := strings.TrimSuffix(strings.TrimSpace(src), ";")
	isExpr := false
	if _, err := syntax.ParseExpression(expr); err == nil && !strings.HasPrefix(expr, "function") {
		isExpr = true
		src = "var " + replResult + " = (" + expr + ");"
	}
	if _, err := s.Eval(name, src); err != nil {
		fmt.Fprint(stderr, driver.Describe(err, src, useColor))
		return
	}
	if !isExpr {
		return
	}
	m := s.Machine()
	if v, ok := m.GetGlobal(replResult); ok && v != m.Undefined() {
		fmt.Fprintln(stdout, m.ToString(v))
	}
}

// cmdRepl reads scripts line by line and runs them on one reference
// machine, so globals survive from one input to the next
func cmdRepl(ctx *CommandContext) error {
	opts, err := ctx.Config.Options(ctx.Stdout)
	if err != nil {
		return err
	}
	session := driver.NewSession(opts)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := historyFile()
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(ctx.Stdout, "%s (type :quit or press Ctrl+D to exit)\n", versionString)

	var in replInput
	count := 0
loop:
	for {
		prompt := replPrompt
		if in.pending() {
			prompt = replContinue
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			in.reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(ctx.Stdout)
			break
		}
		if err != nil {
			return err
		}
		if !in.pending() {
			switch strings.TrimSpace(line) {
			case ":quit", ":q", ":exit":
				break loop
			case "":
				continue
			}
		}
		src, ok := in.add(line)
		if !ok {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		count++
		evalInput(session, fmt.Sprintf("<repl:%d>", count), src, ctx.Stdout, ctx.Stderr, ctx.UseColor)
	}

	if f, err := os.Create(histPath); err == nil {
		ln.WriteHistory(f)
		f.Close()
	}
	return nil
}
