package lexer

import (
	"testing"

	"github.com/xirelogy/go-lisp/internal/token"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `
(define add (lambda (a b)
  (+ a b)))
(set! x -1.5)
`

	tests := []token.Token{
		{Type: token.LParen, Literal: "("},
		{Type: token.Define, Literal: "define"},
		{Type: token.Symbol, Literal: "add"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Lambda, Literal: "lambda"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Symbol, Literal: "a"},
		{Type: token.Symbol, Literal: "b"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Symbol, Literal: "+"},
		{Type: token.Symbol, Literal: "a"},
		{Type: token.Symbol, Literal: "b"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Set, Literal: "set!"},
		{Type: token.Symbol, Literal: "x"},
		{Type: token.Number, Literal: "-1.5"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.EOF},
	}

	l := New(input)
	for i, expected := range tests {
		tok := l.NextToken()
		if tok.Type != expected.Type || tok.Literal != expected.Literal {
			t.Fatalf("token %d: expected %v %q, got %v %q", i, expected.Type, expected.Literal, tok.Type, tok.Literal)
		}
	}
}

func TestLexerReservedWords(t *testing.T) {
	input := `if and or not true false nil lambda define set! iffy nill`
	expected := []token.Type{
		token.If, token.And, token.Or, token.Not, token.True, token.False, token.Nil,
		token.Lambda, token.Define, token.Set, token.Symbol, token.Symbol, token.EOF,
	}

	l := New(input)
	for i, typ := range expected {
		tok := l.NextToken()
		if tok.Type != typ {
			t.Fatalf("token %d: expected %v, got %v (%q)", i, typ, tok.Type, tok.Literal)
		}
	}
}

func TestLexerNumbersAndSigns(t *testing.T) {
	cases := []struct {
		input string
		typ   token.Type
		lit   string
	}{
		{"42", token.Number, "42"},
		{"1.25", token.Number, "1.25"},
		{".5", token.Number, ".5"},
		{"+3", token.Number, "+3"},
		{"-0.75", token.Number, "-0.75"},
		{"1e3", token.Number, "1e3"},
		{"+", token.Symbol, "+"},
		{"-", token.Symbol, "-"},
		{"pair?", token.Symbol, "pair?"},
		{"1+", token.Error, `expected end of token "1+"`},
	}

	for _, tc := range cases {
		tok := New(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Literal != tc.lit {
			t.Fatalf("%q: expected %v %q, got %v %q", tc.input, tc.typ, tc.lit, tok.Type, tok.Literal)
		}
	}
}

func TestLexerStringsAndComments(t *testing.T) {
	input := `; leading comment
"hello\n\"world\"" ; trailing
"open`

	l := New(input)
	tok := l.NextToken()
	if tok.Type != token.String || tok.Literal != "hello\n\"world\"" {
		t.Fatalf("expected string literal, got %v %q", tok.Type, tok.Literal)
	}
	if tok.Pos.Line != 2 {
		t.Fatalf("expected string on line 2, got %d", tok.Pos.Line)
	}
	tok = l.NextToken()
	if tok.Type != token.Error || tok.Literal != "unterminated string" {
		t.Fatalf("expected unterminated string error, got %v %q", tok.Type, tok.Literal)
	}
	if tok = l.NextToken(); tok.Type != token.EOF {
		t.Fatalf("expected EOF, got %v", tok.Type)
	}
}

func TestLexerLineNumbers(t *testing.T) {
	input := "(a\n\n  b)\nc"
	l := New(input)
	wantLines := []int{1, 1, 3, 3, 4}
	for i, want := range wantLines {
		tok := l.NextToken()
		if tok.Pos.Line != want {
			t.Fatalf("token %d (%q): expected line %d, got %d", i, tok.Literal, want, tok.Pos.Line)
		}
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	l := New(`(a 'b)`)
	l.NextToken()
	l.NextToken()
	tok := l.NextToken()
	if tok.Type != token.Error {
		t.Fatalf("expected error token, got %v %q", tok.Type, tok.Literal)
	}
	if tok = l.NextToken(); tok.Type != token.Symbol || tok.Literal != "b" {
		t.Fatalf("expected lexing to resume at b, got %v %q", tok.Type, tok.Literal)
	}
}

func TestBalanced(t *testing.T) {
	cases := map[string]bool{
		"(+ 1 2)":            true,
		"(define f (lambda":  false,
		"":                   true,
		"(a \"unterminated":  false,
		"(a ; comment (\n)":  true,
		"(a))":               true,
		"((lambda (x) x) 1)": true,
	}
	for src, want := range cases {
		if got := Balanced(src); got != want {
			t.Fatalf("Balanced(%q): expected %v, got %v", src, want, got)
		}
	}
}
