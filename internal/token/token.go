package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

const (
	// Error tokens carry the diagnostic in Literal.
	Error Type = "ERROR"
	EOF   Type = "EOF"

	// literals
	Symbol Type = "SYMBOL"
	Number Type = "NUMBER"
	String Type = "STRING"
	True   Type = "TRUE"
	False  Type = "FALSE"
	Nil    Type = "NIL"

	// reserved words
	Define Type = "DEFINE"
	Set    Type = "SET"
	Lambda Type = "LAMBDA"
	If     Type = "IF"
	And    Type = "AND"
	Or     Type = "OR"
	Not    Type = "NOT"

	// delimiters
	LParen Type = "LPAREN"
	RParen Type = "RPAREN"
)

var keywords = map[string]Type{
	"define": Define,
	"set!":   Set,
	"lambda": Lambda,
	"if":     If,
	"and":    And,
	"or":     Or,
	"not":    Not,
	"true":   True,
	"false":  False,
	"nil":    Nil,
}

// LookupSymbol returns the reserved-word token type or Symbol.
func LookupSymbol(text string) Type {
	if tok, ok := keywords[text]; ok {
		return tok
	}
	return Symbol
}

// IsReserved reports whether text is a reserved word and cannot name a variable.
func IsReserved(text string) bool {
	_, ok := keywords[text]
	return ok
}
