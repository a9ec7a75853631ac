package compiler

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-lisp/internal/token"
)

// Error is a single compile diagnostic.
type Error struct {
	Line    int
	Where   string
	Message string
}

func (e *Error) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] Error at %s: %s", e.Line, e.Where, e.Message)
}

// ErrorList holds every diagnostic from one compilation, at most one per
// top-level form.
type ErrorList []*Error

func (l ErrorList) Error() string {
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "\n")
}

func (c *Compiler) errorAt(tok token.Token, msg string) error {
	err := &Error{Line: tok.Pos.Line, Message: msg}
	switch tok.Type {
	case token.EOF:
		err.Where = "end"
	case token.Error:
	case token.String:
		err.Where = fmt.Sprintf("%q", tok.Literal)
	default:
		err.Where = "'" + tok.Literal + "'"
	}
	c.errors = append(c.errors, err)
	c.log.Debug("compile error", "source", c.name, "line", err.Line, "message", msg)
	return err
}

func (c *Compiler) errorAtCurrent(msg string) error {
	return c.errorAt(c.current, msg)
}

func (c *Compiler) errorAtPrevious(msg string) error {
	return c.errorAt(c.previous, msg)
}
