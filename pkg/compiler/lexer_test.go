package compiler

import (
	"reflect"
	"testing"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Punctuation",
			input: "{ } ( ) [ ] ; , = ++ --",
			expected: []Token{
				{Type: LBRACE, Lexeme: "{", Line: 1},
				{Type: RBRACE, Lexeme: "}", Line: 1},
				{Type: LPAREN, Lexeme: "(", Line: 1},
				{Type: RPAREN, Lexeme: ")", Line: 1},
				{Type: LBRACKET, Lexeme: "[", Line: 1},
				{Type: RBRACKET, Lexeme: "]", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: COMMA, Lexeme: ",", Line: 1},
				{Type: ASSIGN, Lexeme: "=", Line: 1},
				{Type: PLUS_PLUS, Lexeme: "++", Line: 1},
				{Type: MINUS_MINUS, Lexeme: "--", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "fn slice import if else while for recall push pop commit my_func _x",
			expected: []Token{
				{Type: FN, Lexeme: "fn", Line: 1},
				{Type: SLICE, Lexeme: "slice", Line: 1},
				{Type: IMPORT, Lexeme: "import", Line: 1},
				{Type: IF, Lexeme: "if", Line: 1},
				{Type: ELSE, Lexeme: "else", Line: 1},
				{Type: WHILE, Lexeme: "while", Line: 1},
				{Type: FOR, Lexeme: "for", Line: 1},
				{Type: RECALL, Lexeme: "recall", Line: 1},
				{Type: PUSH, Lexeme: "push", Line: 1},
				{Type: POP, Lexeme: "pop", Line: 1},
				{Type: COMMIT, Lexeme: "commit", Line: 1},
				{Type: IDENTIFIER, Lexeme: "my_func", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_x", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Integers",
			input: "0 7 123",
			expected: []Token{
				{Type: INTEGER, Lexeme: "0", Line: 1},
				{Type: INTEGER, Lexeme: "7", Line: 1},
				{Type: INTEGER, Lexeme: "123", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "String literal",
			input: `import "lib/steps.nk";`,
			expected: []Token{
				{Type: IMPORT, Lexeme: "import", Line: 1},
				{Type: STRING, Lexeme: "lib/steps.nk", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Line comments and line numbers",
			input: "fn a // a comment\n{ step; }",
			expected: []Token{
				{Type: FN, Lexeme: "fn", Line: 1},
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: LBRACE, Lexeme: "{", Line: 2},
				{Type: IDENTIFIER, Lexeme: "step", Line: 2},
				{Type: SEMICOLON, Lexeme: ";", Line: 2},
				{Type: RBRACE, Lexeme: "}", Line: 2},
				{Type: EOF, Lexeme: "", Line: 2},
			},
		},
		{
			name:    "Lone plus",
			input:   "fn a { + }",
			wantErr: true,
		},
		{
			name:    "Unterminated string",
			input:   `import "oops`,
			wantErr: true,
		},
		{
			name:    "Illegal character",
			input:   "fn a { step; } @",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got tokens %v", tokens)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(tokens, tt.expected) {
				t.Errorf("token mismatch\n got: %v\nwant: %v", tokens, tt.expected)
			}
		})
	}
}
