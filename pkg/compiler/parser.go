package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Import is a single import declaration.
type Import struct {
	Path string
	Line int
}

// Unit is one parsed source file: its imports and top-level definitions.
type Unit struct {
	File    string
	Imports []Import
	Defs    []*Definition
}

// Parser consumes the flat token slice produced by the Lexer and builds a Unit.
//
// Grammar:
//
//	program    = (importDecl | fnDecl)*
//	importDecl = "import" STRING ";"
//	fnDecl     = ["slice"] "fn" IDENT ["(" params ")"] block
//	block      = "{" stmt* "}"
//	stmt       = builtin ";" | IDENT ["(" args ")"] ";" | "recall" ["(" args ")"] ";"
//	           | "if" cond block ["else" block] | "while" cond block | "for" count block
//	           | "push" IDENT "=" IDENT "(" [args] ")" ";" | "pop" IDENT ";" | "commit" ";"
//	           | "[" IDENT "]" ";" | "fn" ["(" params ")"] block ["(" args ")"] ";" | ";"
//	cond       = ("is_"|"not_")TEST | "[" IDENT "]"
//	count      = INTEGER | "[" IDENT "]"
//	arg        = INTEGER | cond | "[" IDENT "]" | "{" stmt* "}"
type Parser struct {
	tokens  []Token
	pos     int
	file    string
	current *Definition // innermost definition being parsed
	lambdas int         // per-file lambda ordinal
}

// NewParser wraps a token stream for the named source file.
func NewParser(tokens []Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// Parse lexes and parses one source file.
func Parse(src, file string) (*Unit, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, syntaxErr(file, lexErrLine(err), "%v", err)
	}
	return NewParser(tokens, file).parseUnit()
}

// lexErrLine pulls the "on line N" suffix out of a lexer error, so the
// reporter can show context. Falls back to line 1.
func lexErrLine(err error) int {
	s := err.Error()
	i := strings.LastIndex(s, "line ")
	if i < 0 {
		return 1
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(s[i+5:]))
	if convErr != nil {
		return 1
	}
	return n
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise errors.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, syntaxErr(p.file, tok.Line, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func (p *Parser) parseUnit() (*Unit, error) {
	unit := &Unit{File: p.file}
	for {
		tok := p.peek()
		switch tok.Type {
		case EOF:
			return unit, nil

		case IMPORT:
			p.advance()
			path, err := p.expect(STRING)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
			unit.Imports = append(unit.Imports, Import{Path: path.Lexeme, Line: path.Line})

		case SLICE, FN:
			def, err := p.parseFnDecl()
			if err != nil {
				return nil, err
			}
			unit.Defs = append(unit.Defs, def)

		default:
			return nil, syntaxErr(p.file, tok.Line, "expected import or fn at top level, got %s (%q)", tok.Type, tok.Lexeme)
		}
	}
}

func (p *Parser) parseFnDecl() (*Definition, error) {
	slicing := false
	if p.peek().Type == SLICE {
		p.advance()
		slicing = true
	}
	if _, err := p.expect(FN); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	def := &Definition{Name: name.Lexeme, IsSlicing: slicing, File: p.file, Line: name.Line}

	if p.peek().Type == LPAREN {
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		def.Params = params
	}

	prev := p.current
	p.current = def
	body, err := p.parseBlock()
	p.current = prev
	if err != nil {
		return nil, err
	}
	def.Body = body
	return def, nil
}

// parseParams consumes "(" IDENT ("," IDENT)* ")" with an empty list allowed.
func (p *Parser) parseParams() ([]string, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var params []string
	if p.peek().Type == RPAREN {
		p.advance()
		return params, nil
	}
	for {
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		params = append(params, name.Lexeme)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

// parseBlock consumes "{" stmt* "}".
func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, syntaxErr(p.file, p.peek().Line, "unexpected end of file inside block")
		}
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	p.advance() // consume }
	return stmts, nil
}

func (p *Parser) parseStmt() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case SEMICOLON:
		p.advance()
		return &NoOpStmt{Line: tok.Line}, nil

	case PLUS_PLUS:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BuiltinStmt{Op: "place", Line: tok.Line}, nil

	case MINUS_MINUS:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BuiltinStmt{Op: "pick", Line: tok.Line}, nil

	case IF:
		p.advance()
		cond, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		then, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		var els []Stmt
		if p.peek().Type == ELSE {
			p.advance()
			els, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
		return &IfStmt{Cond: cond, Then: then, Else: els, Line: tok.Line}, nil

	case WHILE:
		p.advance()
		cond, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body, Line: tok.Line}, nil

	case FOR:
		p.advance()
		count, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ForStmt{Count: count, Body: body, Line: tok.Line}, nil

	case RECALL:
		p.advance()
		st := &RecallStmt{Line: tok.Line}
		if p.peek().Type == LPAREN {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			st.Args = args
			st.Explicit = true
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return st, nil

	case PUSH:
		p.advance()
		binding, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(ASSIGN); err != nil {
			return nil, err
		}
		callee, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &PushStmt{CalleeName: callee.Lexeme, Args: args, Binding: binding.Lexeme, Line: tok.Line}, nil

	case POP:
		p.advance()
		binding, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &PopStmt{Binding: binding.Lexeme, Line: tok.Line}, nil

	case COMMIT:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &CommitStmt{Line: tok.Line}, nil

	case LBRACKET:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &TargetStmt{Name: name.Lexeme, Line: tok.Line}, nil

	case FN:
		return p.parseLambda()

	case IDENTIFIER:
		p.advance()
		if _, ok := Builtins[tok.Lexeme]; ok && p.peek().Type != LPAREN {
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
			return &BuiltinStmt{Op: tok.Lexeme, Line: tok.Line}, nil
		}
		st := &CallStmt{Name: tok.Lexeme, Line: tok.Line}
		if p.peek().Type == LPAREN {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			st.Args = args
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return st, nil

	default:
		return nil, syntaxErr(p.file, tok.Line, "unexpected %s (%q) in function body", tok.Type, tok.Lexeme)
	}
}

// parseLambda consumes fn ["(" params ")"] block ["(" args ")"] ";"
// The lambda keeps a pointer to its enclosing definition so parent template
// parameters can be resolved at substitution time.
func (p *Parser) parseLambda() (Stmt, error) {
	tok := p.advance() // fn
	p.lambdas++
	def := &Definition{
		Name:     fmt.Sprintf("%s.fn%d", p.current.Name, p.lambdas),
		IsLambda: true,
		Parent:   p.current,
		File:     p.file,
		Line:     tok.Line,
	}
	if p.peek().Type == LPAREN {
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		def.Params = params
	}

	prev := p.current
	p.current = def
	body, err := p.parseBlock()
	p.current = prev
	if err != nil {
		return nil, err
	}
	def.Body = body

	st := &LambdaStmt{Def: def, Line: tok.Line}
	if p.peek().Type == LPAREN {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		st.Args = args
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if len(st.Args) != len(def.Params) {
		return nil, syntaxErr(p.file, tok.Line, "lambda takes %d template arguments, %d given", len(def.Params), len(st.Args))
	}
	return st, nil
}

// parseCond consumes a condition: is_<test>, not_<test> or [param].
func (p *Parser) parseCond() (Cond, error) {
	tok := p.advance()
	switch tok.Type {
	case LBRACKET:
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return Cond{}, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return Cond{}, err
		}
		return Cond{Param: name.Lexeme, Line: tok.Line}, nil

	case IDENTIFIER:
		c, ok := condFromIdent(tok.Lexeme)
		if !ok {
			return Cond{}, syntaxErr(p.file, tok.Line, "unknown condition %q (want is_/not_ + wall, flag, north, south, east, west or home)", tok.Lexeme)
		}
		c.Line = tok.Line
		return c, nil
	}
	return Cond{}, syntaxErr(p.file, tok.Line, "expected condition, got %s (%q)", tok.Type, tok.Lexeme)
}

// condFromIdent interprets an identifier as a condition, if it is one.
func condFromIdent(s string) (Cond, bool) {
	var not bool
	var test string
	switch {
	case strings.HasPrefix(s, "is_"):
		test = s[len("is_"):]
	case strings.HasPrefix(s, "not_"):
		not = true
		test = s[len("not_"):]
	default:
		return Cond{}, false
	}
	if _, ok := CondTests[test]; !ok {
		return Cond{}, false
	}
	return Cond{Not: not, Test: test}, true
}

// parseCount consumes a loop bound: INTEGER or [param].
func (p *Parser) parseCount() (Count, error) {
	tok := p.advance()
	switch tok.Type {
	case INTEGER:
		n, err := strconv.Atoi(tok.Lexeme)
		if err != nil || n < 0 {
			return Count{}, syntaxErr(p.file, tok.Line, "invalid loop count %q", tok.Lexeme)
		}
		return Count{Value: n, Line: tok.Line}, nil
	case LBRACKET:
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return Count{}, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return Count{}, err
		}
		return Count{Param: name.Lexeme, Line: tok.Line}, nil
	}
	return Count{}, syntaxErr(p.file, tok.Line, "expected loop count, got %s (%q)", tok.Type, tok.Lexeme)
}

// parseArgs consumes "(" [arg ("," arg)*] ")" where each arg is a
// template-argument fragment.
func (p *Parser) parseArgs() ([]Fragment, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var args []Fragment
	if p.peek().Type == RPAREN {
		p.advance()
		return args, nil
	}
	for {
		frag, err := p.parseFragment()
		if err != nil {
			return nil, err
		}
		args = append(args, frag)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseFragment() (Fragment, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		n, err := strconv.Atoi(tok.Lexeme)
		if err != nil || n < 0 {
			return Fragment{}, syntaxErr(p.file, tok.Line, "invalid count fragment %q", tok.Lexeme)
		}
		return Fragment{Count: &Count{Value: n, Line: tok.Line}, Line: tok.Line}, nil

	case LBRACKET:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return Fragment{}, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return Fragment{}, err
		}
		return Fragment{Param: name.Lexeme, Line: tok.Line}, nil

	case IDENTIFIER:
		if c, ok := condFromIdent(tok.Lexeme); ok {
			p.advance()
			c.Line = tok.Line
			return Fragment{Cond: &c, Line: tok.Line}, nil
		}
		return Fragment{}, syntaxErr(p.file, tok.Line, "unknown fragment %q (statement fragments need braces)", tok.Lexeme)

	case LBRACE:
		stmts, err := p.parseBlock()
		if err != nil {
			return Fragment{}, err
		}
		if stmts == nil {
			stmts = []Stmt{}
		}
		return Fragment{Stmts: stmts, Line: tok.Line}, nil
	}
	return Fragment{}, syntaxErr(p.file, tok.Line, "expected template argument, got %s (%q)", tok.Type, tok.Lexeme)
}
