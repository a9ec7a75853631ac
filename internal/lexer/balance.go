package lexer

import "github.com/xirelogy/go-lisp/internal/token"

// Balanced reports whether every '(' in src has been closed. Lexical errors
// count as balanced so the caller submits the input and sees the diagnostic.
func Balanced(src string) bool {
	l := New(src)
	depth := 0
	for {
		tok := l.NextToken()
		switch tok.Type {
		case token.EOF:
			return depth <= 0
		case token.Error:
			if tok.Literal == "unterminated string" {
				return false
			}
			return true
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		}
	}
}
