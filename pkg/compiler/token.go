package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // function / parameter / binding name
	INTEGER    // decimal integer literal
	STRING     // string literal "..."

	// Keywords
	FN     // "fn"
	SLICE  // "slice"
	IMPORT // "import"
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	FOR    // "for"
	RECALL // "recall"
	PUSH   // "push"
	POP    // "pop"
	COMMIT // "commit"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,
	ASSIGN    // =

	PLUS_PLUS   // ++ (alias for the place builtin)
	MINUS_MINUS // -- (alias for the pick builtin)
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	INTEGER:     "INTEGER",
	STRING:      "STRING",
	FN:          "FN",
	SLICE:       "SLICE",
	IMPORT:      "IMPORT",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	FOR:         "FOR",
	RECALL:      "RECALL",
	PUSH:        "PUSH",
	POP:         "POP",
	COMMIT:      "COMMIT",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	LBRACKET:    "LBRACKET",
	RBRACKET:    "RBRACKET",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	ASSIGN:      "ASSIGN",
	PLUS_PLUS:   "PLUS_PLUS",
	MINUS_MINUS: "MINUS_MINUS",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
