package lexer

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-lisp/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	return NewAtLine(input, 1)
}

// NewAtLine creates a lexer whose first line is numbered line.
func NewAtLine(input string, line int) *Lexer {
	if line < 1 {
		line = 1
	}
	l := &Lexer{
		input: input,
		line:  line,
	}
	l.readChar()
	return l
}

// NextToken returns the next token from the input. Once the input is
// exhausted it keeps returning EOF.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == ';' {
			l.skipLineComment()
			continue
		}

		if l.ch == 0 {
			return l.makeToken(token.EOF, "")
		}

		switch l.ch {
		case '(':
			tok := l.makeToken(token.LParen, "(")
			l.readChar()
			return tok
		case ')':
			tok := l.makeToken(token.RParen, ")")
			l.readChar()
			return tok
		case '"':
			return l.readString()
		case '+', '-':
			if isDigit(l.peekChar()) || (l.peekChar() == '.' && isDigit(l.peekCharAt(2))) {
				return l.readNumber()
			}
			return l.readSymbol()
		case '.':
			if isDigit(l.peekChar()) {
				return l.readNumber()
			}
			return l.readSymbol()
		default:
			if isDigit(l.ch) {
				return l.readNumber()
			}
			if isSymbolChar(l.ch) {
				return l.readSymbol()
			}
			tok := l.makeToken(token.Error, fmt.Sprintf("unexpected character '%c'", l.ch))
			l.readChar()
			return tok
		}
	}
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos: token.Position{
			Offset: l.pos,
			Line:   l.line,
			Column: l.column,
		},
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipLineComment() {
	for l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) readSymbol() token.Token {
	start := l.makeToken(token.Symbol, "")
	var sb strings.Builder
	for isSymbolChar(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	lit := sb.String()
	start.Type = token.LookupSymbol(lit)
	start.Literal = lit
	return l.checkDelimited(start)
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Number, "")
	var sb strings.Builder
	if l.ch == '+' || l.ch == '-' {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	for isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' {
		sb.WriteByte(l.ch)
		l.readChar()
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekCharAt(2))) {
			sb.WriteByte(l.ch)
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				sb.WriteByte(l.ch)
				l.readChar()
			}
			for isDigit(l.ch) {
				sb.WriteByte(l.ch)
				l.readChar()
			}
		}
	}
	start.Literal = sb.String()
	return l.checkDelimited(start)
}

func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder

	for {
		l.readChar()
		if l.ch == 0 {
			return l.errorAt(start, "unterminated string")
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 0:
				return l.errorAt(start, "unterminated string")
			case '"', '\\':
				sb.WriteByte(l.ch)
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(l.ch)
			}
			continue
		}
		sb.WriteByte(l.ch)
	}

	start.Literal = sb.String()
	return l.checkDelimited(start)
}

// checkDelimited requires an atom to be followed by whitespace, a
// parenthesis, a comment or the end of input.
func (l *Lexer) checkDelimited(tok token.Token) token.Token {
	if isDelimiter(l.ch) {
		return tok
	}
	var sb strings.Builder
	sb.WriteString(tok.Literal)
	for !isDelimiter(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	return l.errorAt(tok, fmt.Sprintf("expected end of token %q", sb.String()))
}

func (l *Lexer) errorAt(start token.Token, msg string) token.Token {
	start.Type = token.Error
	start.Literal = msg
	return start
}

func isDelimiter(ch byte) bool {
	switch ch {
	case 0, ' ', '\t', '\r', '\n', '(', ')', ';':
		return true
	default:
		return false
	}
}

func isSymbolChar(ch byte) bool {
	if ch <= ' ' || ch >= 0x7f {
		return ch >= 0x80
	}
	switch ch {
	case '(', ')', '"', ';', '\'', '`', ',':
		return false
	default:
		return true
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) peekChar() byte {
	return l.peekCharAt(1)
}

func (l *Lexer) peekCharAt(n int) byte {
	idx := l.readPos + n - 1
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPos >= len(l.input) {
		l.pos = l.readPos
		l.ch = 0
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.column++
}
