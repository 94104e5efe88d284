package calc

import (
	"strings"
	"unicode"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenErrorLiteral
	TokenIdentifier // names, references, function names, TRUE/FALSE
	TokenSheet      // sheet prefix, already stripped of quotes and '!'
	TokenBracket    // structured reference body including brackets
	TokenOperator
	TokenPercent
	TokenHash
	TokenAt
	TokenColon
	TokenComma
	TokenSemicolon
	TokenLeftParen
	TokenRightParen
	TokenLeftBrace
	TokenRightBrace
)

var tokenTypeNames = map[TokenType]string{
	TokenEOF:          "end of formula",
	TokenNumber:       "number",
	TokenString:       "text",
	TokenErrorLiteral: "error",
	TokenIdentifier:   "identifier",
	TokenSheet:        "sheet",
	TokenBracket:      "structured reference",
	TokenOperator:     "operator",
	TokenPercent:      "%",
	TokenHash:         "#",
	TokenAt:           "@",
	TokenColon:        ":",
	TokenComma:        ",",
	TokenSemicolon:    ";",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
}

func (t TokenType) String() string {
	return tokenTypeNames[t]
}

// Token is one lexed unit. Start and End are offsets in Unicode scalar
// values from the start of the formula text.
type Token struct {
	Type        TokenType
	Value       string
	Start       int
	End         int
	SpaceBefore bool

	// sheet tokens only
	LastSheet string // second sheet of a 3-D prefix
	Book      string // external workbook name
}

// character classification constants. slightly easier to read.
const (
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charLBrace     = '{'
	charRBrace     = '}'
	charLBracket   = '['
	charRBracket   = ']'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charSemicolon  = ';'
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charHash       = '#'
	charAt         = '@'
	charDollar     = '$'
	charBackslash  = '\\'
	charQuestion   = '?'
)

// Lexer tokenizes formula expressions
type Lexer struct {
	runes []rune
	pos   int
	style RefStyle
	space bool
}

// NewLexer creates a lexer for A1-style formula text
func NewLexer(input string) *Lexer {
	return &Lexer{runes: []rune(input), style: StyleA1}
}

// NewLexerWithStyle creates a lexer that understands the given reference
// notation
func NewLexerWithStyle(input string, style RefStyle) *Lexer {
	return &Lexer{runes: []rune(input), style: style}
}

// Tokenize tokenizes the whole input. on failure the tokens read so far are
// returned with the error so partial parsing can continue from them.
func (l *Lexer) Tokenize() ([]Token, *ParseError) {
	var tokens []Token
	for {
		tok, err := l.nextToken(tokens)
		if err != nil {
			tokens = append(tokens, Token{Type: TokenEOF, Start: l.pos, End: l.pos})
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) nextToken(prev []Token) (Token, *ParseError) {
	l.space = false
	for l.pos < len(l.runes) && isFormulaSpace(l.current()) {
		l.pos++
		l.space = true
	}
	if l.pos >= len(l.runes) {
		return l.token(TokenEOF, "", l.pos), nil
	}

	start := l.pos
	ch := l.current()
	switch {
	case ch == charQuote:
		return l.scanString()
	case ch == charApostrophe:
		return l.scanQuotedSheet()
	case ch == charLBracket:
		return l.scanBracketOrExternal(prev)
	case ch == charHash:
		return l.scanHash(prev)
	case l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))):
		return l.scanNumber(), nil
	case l.isIdentStart(ch):
		return l.scanIdentifier()
	}

	l.pos++
	switch ch {
	case charPlus, charMinus, charAsterisk, charSlash, charCaret, charAmpersand, charEqual:
		return l.token(TokenOperator, string(ch), start), nil
	case charLess:
		if l.current() == charGreater || l.current() == charEqual {
			l.pos++
		}
		return l.token(TokenOperator, string(l.runes[start:l.pos]), start), nil
	case charGreater:
		if l.current() == charEqual {
			l.pos++
		}
		return l.token(TokenOperator, string(l.runes[start:l.pos]), start), nil
	case charPercent:
		return l.token(TokenPercent, "%", start), nil
	case charAt:
		return l.token(TokenAt, "@", start), nil
	case charColon:
		return l.token(TokenColon, ":", start), nil
	case charComma:
		return l.token(TokenComma, ",", start), nil
	case charSemicolon:
		return l.token(TokenSemicolon, ";", start), nil
	case charLParen:
		return l.token(TokenLeftParen, "(", start), nil
	case charRParen:
		return l.token(TokenRightParen, ")", start), nil
	case charLBrace:
		return l.token(TokenLeftBrace, "{", start), nil
	case charRBrace:
		return l.token(TokenRightBrace, "}", start), nil
	}
	return Token{}, l.errorAt(start, "unexpected character %q", string(ch))
}

func (l *Lexer) token(t TokenType, value string, start int) Token {
	return Token{Type: t, Value: value, Start: start, End: l.pos, SpaceBefore: l.space}
}

func (l *Lexer) errorAt(start int, format string, args ...any) *ParseError {
	return newParseError(ParseErrorSyntax, NodePosition{Start: start, End: l.pos}, format, args...)
}

// current returns the rune at the current position, or 0 past the end
func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return 0
	}
	return l.runes[l.pos]
}

// peek returns the rune at the given offset from the current position
func (l *Lexer) peek(offset int) rune {
	if l.pos+offset >= len(l.runes) {
		return 0
	}
	return l.runes[l.pos+offset]
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == charUnderscore || ch == charBackslash || ch == charDollar
}

func (l *Lexer) isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == charUnderscore ||
		ch == charPeriod || ch == charBackslash || ch == charQuestion || ch == charDollar
}

func isFormulaSpace(ch rune) bool {
	return ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	start := l.pos
	for l.isDigit(l.current()) {
		l.pos++
	}
	if l.current() == charPeriod {
		l.pos++
		for l.isDigit(l.current()) {
			l.pos++
		}
	}
	if l.current() == 'e' || l.current() == 'E' {
		saved := l.pos
		l.pos++
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = saved
		} else {
			for l.isDigit(l.current()) {
				l.pos++
			}
		}
	}
	return l.token(TokenNumber, string(l.runes[start:l.pos]), start)
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() (Token, *ParseError) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charQuote {
			if l.peek(1) == charQuote {
				b.WriteRune(charQuote)
				l.pos += 2
				continue
			}
			l.pos++
			return l.token(TokenString, b.String(), start), nil
		}
		b.WriteRune(ch)
		l.pos++
	}
	return Token{}, l.errorAt(start, "unterminated string literal")
}

// scanQuotedSheet scans 'Sheet Name'! with '' escapes, including 3-D and
// external workbook forms
func (l *Lexer) scanQuotedSheet() (Token, *ParseError) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for {
		if l.pos >= len(l.runes) {
			return Token{}, l.errorAt(start, "unterminated quoted sheet name")
		}
		ch := l.current()
		if ch == charApostrophe {
			if l.peek(1) == charApostrophe {
				b.WriteRune(charApostrophe)
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		b.WriteRune(ch)
		l.pos++
	}
	if l.current() != charExclaim {
		return Token{}, l.errorAt(start, "quoted sheet name must be followed by '!'")
	}
	l.pos++
	name := b.String()
	tok := l.token(TokenSheet, name, start)
	if strings.HasPrefix(name, "[") {
		if end := strings.IndexByte(name, ']'); end > 0 {
			tok.Book = name[1:end]
			name = name[end+1:]
		}
	}
	first, last, is3D := strings.Cut(name, ":")
	tok.Value = first
	if is3D {
		tok.LastSheet = last
	}
	return tok, nil
}

// scanBracketOrExternal scans either an external workbook prefix such as
// [Book.xlsx]Sheet1! or a structured reference body
func (l *Lexer) scanBracketOrExternal(prev []Token) (Token, *ParseError) {
	start := l.pos
	end, err := l.matchBrackets(l.pos)
	if err != nil {
		return Token{}, err
	}
	body := string(l.runes[start:end])
	// external prefix: [Book]Sheet!
	if !strings.Contains(body[1:], "[") {
		p := end
		for p < len(l.runes) && l.isIdentPart(l.runes[p]) {
			p++
		}
		if p > end && p < len(l.runes) && l.runes[p] == charExclaim {
			l.pos = p + 1
			tok := l.token(TokenSheet, string(l.runes[end:p]), start)
			tok.Book = body[1 : len(body)-1]
			return tok, nil
		}
	}
	l.pos = end
	return l.token(TokenBracket, body, start), nil
}

// matchBrackets finds the end of a bracketed group starting at from,
// honouring nesting and the ' escape used inside structured references
func (l *Lexer) matchBrackets(from int) (int, *ParseError) {
	depth := 0
	for p := from; p < len(l.runes); p++ {
		switch l.runes[p] {
		case charApostrophe:
			p++
		case charLBracket:
			depth++
		case charRBracket:
			depth--
			if depth == 0 {
				return p + 1, nil
			}
		}
	}
	l.pos = len(l.runes)
	return 0, l.errorAt(from, "unterminated '['")
}

// scanHash scans an error literal, or the spill operator when '#' directly
// follows a reference
func (l *Lexer) scanHash(prev []Token) (Token, *ParseError) {
	start := l.pos
	rest := strings.ToUpper(string(l.runes[l.pos:min(len(l.runes), l.pos+8)]))
	for text := range errorLiterals {
		if strings.HasPrefix(rest, text) {
			l.pos += len([]rune(text))
			return l.token(TokenErrorLiteral, text, start), nil
		}
	}
	if len(prev) > 0 && !l.space {
		switch prev[len(prev)-1].Type {
		case TokenIdentifier, TokenRightParen, TokenBracket:
			l.pos++
			return l.token(TokenHash, "#", start), nil
		}
	}
	l.pos++
	return Token{}, l.errorAt(start, "unexpected '#'")
}

// scanIdentifier scans names, references, function names and sheet
// prefixes
func (l *Lexer) scanIdentifier() (Token, *ParseError) {
	start := l.pos
	if l.style == StyleR1C1 {
		if end := l.matchR1C1(l.pos); end > l.pos {
			l.pos = end
			if l.current() != charExclaim && l.current() != charLParen && !l.isIdentPart(l.current()) {
				return l.token(TokenIdentifier, string(l.runes[start:l.pos]), start), nil
			}
			l.pos = start
		}
	}
	for l.isIdentPart(l.current()) {
		l.pos++
	}
	name := string(l.runes[start:l.pos])

	if l.current() == charExclaim {
		l.pos++
		return l.token(TokenSheet, name, start), nil
	}
	// 3-D prefix: Sheet1:Sheet3!
	if l.current() == charColon && l.isIdentStart(l.peek(1)) {
		p := l.pos + 1
		for p < len(l.runes) && l.isIdentPart(l.runes[p]) {
			p++
		}
		if p < len(l.runes) && l.runes[p] == charExclaim {
			last := string(l.runes[l.pos+1 : p])
			l.pos = p + 1
			tok := l.token(TokenSheet, name, start)
			tok.LastSheet = last
			return tok, nil
		}
	}
	return l.token(TokenIdentifier, name, start), nil
}

// matchR1C1 returns the end offset of an R1C1 reference starting at from,
// or from when there is none
func (l *Lexer) matchR1C1(from int) int {
	p := from
	part := func(letter rune) bool {
		if p >= len(l.runes) || unicode.ToUpper(l.runes[p]) != letter {
			return false
		}
		p++
		if p < len(l.runes) && l.runes[p] == charLBracket {
			q := p + 1
			if q < len(l.runes) && (l.runes[q] == charMinus || l.runes[q] == charPlus) {
				q++
			}
			digits := q
			for q < len(l.runes) && l.isDigit(l.runes[q]) {
				q++
			}
			if q == digits || q >= len(l.runes) || l.runes[q] != charRBracket {
				return false
			}
			p = q + 1
			return true
		}
		for p < len(l.runes) && l.isDigit(l.runes[p]) {
			p++
		}
		return true
	}
	saved := p
	hasRow := part('R')
	if !hasRow {
		p = saved
	}
	saved = p
	hasCol := part('C')
	if !hasCol {
		p = saved
	}
	if !hasRow && !hasCol {
		return from
	}
	return p
}
