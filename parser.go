package calc

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// parser limits, matching Excel
const (
	MaxFormulaLength    = 8192
	MaxNestedCalls      = 64
	MaxNestedParens     = 64
	MaxPowerChain       = 64
	MaxFunctionArgs     = 255
	MaxTokenizedSize    = 16384
	functionNamePrefix1 = "_XLFN._XLWS."
	functionNamePrefix2 = "_XLFN."
	functionNamePrefix3 = "_XLWS."
	functionNamePrefix4 = "_XLUDF."
)

// ParseOptions controls how formula text is read
type ParseOptions struct {
	Style  RefStyle
	Origin CellAddr // cell the formula belongs to, for relative references
	Locale *LocaleConfig
	// ResolveSheet maps a sheet display name to its id. unknown sheets keep
	// id 0 and are resolved again by name when evaluated.
	ResolveSheet func(name string) (SheetID, bool)
}

// Parser parses tokens into an AST
type Parser struct {
	tokens     []Token
	pos        int
	opts       ParseOptions
	callDepth  int
	parenDepth int
	limitErr   *ParseError
	warnings   []ParseWarning
}

// ParseFormula parses formula text, with or without a leading '=', and
// rejects anything over the Excel limits
func ParseFormula(text string, opts ParseOptions) (*Ast, error) {
	partial := ParseFormulaPartial(text, opts)
	if partial.Error != nil {
		return nil, partial.Error
	}
	return partial.Ast, nil
}

// ParseFormulaPartial parses as much of the formula as it can. the returned
// Ast is always usable for tooling; Error carries the first problem.
func ParseFormulaPartial(text string, opts ParseOptions) *PartialAst {
	body := strings.TrimPrefix(text, "=")
	ast := &Ast{Text: body, Style: opts.Style, Origin: opts.Origin}
	result := &PartialAst{Ast: ast}

	p := &Parser{opts: opts}
	if n := utf8.RuneCountInString(body); n > MaxFormulaLength {
		p.limit(ParseErrorTooLong, NodePosition{Start: MaxFormulaLength, End: n},
			"formula has %d characters, the limit is %d", n, MaxFormulaLength)
	}

	tokens, lexErr := NewLexerWithStyle(body, opts.Style).Tokenize()
	p.tokens = tokens
	if size := estimateTokenSize(tokens); size > MaxTokenizedSize {
		p.limit(ParseErrorTokenSize, NodePosition{Start: 0, End: utf8.RuneCountInString(body)},
			"tokenized formula needs %d bytes, the limit is %d", size, MaxTokenizedSize)
	}

	root, err := p.parseExpression()
	if err == nil && p.current().Type != TokenEOF {
		tok := p.current()
		err = p.syntaxError(tok, "unexpected %s %q", tok.Type, tok.Value)
	}
	if err == nil && lexErr != nil {
		err = lexErr
	}
	if root == nil {
		root = &MissingNode{}
	}
	ast.Root = root
	ast.Warnings = p.warnings

	// limit errors are found first in the text for length, but a syntax
	// error is more useful when both are present only if it comes earlier
	switch {
	case p.limitErr != nil && err != nil:
		if err.Span.Start < p.limitErr.Span.Start {
			result.Error = err
		} else {
			result.Error = p.limitErr
		}
	case p.limitErr != nil:
		result.Error = p.limitErr
	case err != nil:
		result.Error = err
	}
	return result
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekToken(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) isOperator(values ...string) bool {
	tok := p.current()
	if tok.Type != TokenOperator {
		return false
	}
	for _, v := range values {
		if tok.Value == v {
			return true
		}
	}
	return false
}

// limit records a limit violation and lets parsing continue so partial
// mode can still produce a tree
func (p *Parser) limit(kind ParseErrorKind, span NodePosition, format string, args ...any) {
	if p.limitErr == nil {
		p.limitErr = newParseError(kind, span, format, args...)
	}
}

func (p *Parser) syntaxError(tok Token, format string, args ...any) *ParseError {
	return newParseError(ParseErrorSyntax, NodePosition{Start: tok.Start, End: tok.End}, format, args...)
}

func (p *Parser) expect(t TokenType) (Token, *ParseError) {
	tok := p.current()
	if tok.Type != t {
		if tok.Type == TokenEOF {
			return tok, p.syntaxError(tok, "expected %s before end of formula", t)
		}
		return tok, p.syntaxError(tok, "expected %s, found %q", t, tok.Value)
	}
	return p.advance(), nil
}

func span(a, b Node) NodePosition {
	return NodePosition{Start: a.GetPosition().Start, End: b.GetPosition().End}
}

func (p *Parser) parseExpression() (Node, *ParseError) {
	return p.parseComparison()
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (Node, *ParseError) {
	left, err := p.parseConcatenation()
	if err != nil {
		return left, err
	}
	for p.current().Type == TokenOperator {
		var op BinaryOp
		switch p.current().Value {
		case "=":
			op = BinOpEqual
		case "<>":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseConcatenation()
		if right == nil {
			return left, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Position: span(left, right)}
		if err != nil {
			return left, err
		}
	}
	return left, nil
}

// parseConcatenation handles the & operator
func (p *Parser) parseConcatenation() (Node, *ParseError) {
	return p.parseLeftAssoc(p.parseAdditive, map[string]BinaryOp{"&": BinOpConcat})
}

func (p *Parser) parseAdditive() (Node, *ParseError) {
	return p.parseLeftAssoc(p.parseMultiplicative, map[string]BinaryOp{"+": BinOpAdd, "-": BinOpSubtract})
}

func (p *Parser) parseMultiplicative() (Node, *ParseError) {
	return p.parseLeftAssoc(p.parsePower, map[string]BinaryOp{"*": BinOpMultiply, "/": BinOpDivide})
}

func (p *Parser) parseLeftAssoc(next func() (Node, *ParseError), ops map[string]BinaryOp) (Node, *ParseError) {
	left, err := next()
	if err != nil {
		return left, err
	}
	for p.current().Type == TokenOperator {
		op, ok := ops[p.current().Value]
		if !ok {
			break
		}
		p.advance()
		right, err := next()
		if right == nil {
			return left, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Position: span(left, right)}
		if err != nil {
			return left, err
		}
	}
	return left, nil
}

// parsePower handles ^, which is left associative in Excel
func (p *Parser) parsePower() (Node, *ParseError) {
	left, err := p.parseUnary()
	if err != nil {
		return left, err
	}
	chain := 0
	for p.isOperator("^") {
		tok := p.advance()
		chain++
		if chain > MaxPowerChain {
			p.limit(ParseErrorPowerChain, NodePosition{Start: tok.Start, End: tok.End},
				"more than %d chained exponent operators", MaxPowerChain)
		}
		right, err := p.parseUnary()
		if right == nil {
			return left, err
		}
		left = &BinaryOpNode{Op: BinOpPower, Left: left, Right: right, Position: span(left, right)}
		if err != nil {
			return left, err
		}
	}
	return left, nil
}

// parseUnary handles prefix + - and @
func (p *Parser) parseUnary() (Node, *ParseError) {
	tok := p.current()
	var op UnaryOp
	switch {
	case tok.Type == TokenOperator && tok.Value == "-":
		op = UnaryOpMinus
	case tok.Type == TokenOperator && tok.Value == "+":
		op = UnaryOpPlus
	case tok.Type == TokenAt:
		op = UnaryOpImplicit
	default:
		return p.parsePostfix()
	}
	p.advance()
	operand, err := p.parseUnary()
	if operand == nil {
		return nil, err
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Start, End: operand.GetPosition().End},
	}, err
}

// parsePostfix handles the percent operator
func (p *Parser) parsePostfix() (Node, *ParseError) {
	node, err := p.parseIntersection()
	if err != nil {
		return node, err
	}
	for p.current().Type == TokenPercent {
		tok := p.advance()
		node = &PostfixOpNode{
			Op:       PostfixPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: tok.End},
		}
	}
	return node, nil
}

// parseIntersection handles the space operator between references
func (p *Parser) parseIntersection() (Node, *ParseError) {
	left, err := p.parseRange()
	if err != nil {
		return left, err
	}
	for {
		tok := p.current()
		if !tok.SpaceBefore || !startsReference(tok) || !isReferenceNode(left) {
			return left, nil
		}
		right, err := p.parseRange()
		if right == nil {
			return left, err
		}
		left = &BinaryOpNode{Op: BinOpIntersect, Left: left, Right: right, Position: span(left, right)}
		if err != nil {
			return left, err
		}
	}
}

func startsReference(tok Token) bool {
	switch tok.Type {
	case TokenIdentifier, TokenSheet, TokenLeftParen, TokenBracket:
		return true
	}
	return false
}

// isReferenceNode reports whether a node may produce a reference
func isReferenceNode(n Node) bool {
	switch x := n.(type) {
	case *CellRefNode, *RangeNode, *NameNode, *StructuredRefNode, *FunctionCallNode:
		return true
	case *BinaryOpNode:
		return x.Op.isReferenceOp()
	case *PostfixOpNode:
		return x.Op == PostfixSpill
	}
	return false
}

// parseRange handles the : operator
func (p *Parser) parseRange() (Node, *ParseError) {
	left, err := p.parseReferencePostfix()
	if err != nil {
		return left, err
	}
	for p.current().Type == TokenColon {
		p.advance()
		right, err := p.parseReferencePostfix()
		if right == nil {
			return left, err
		}
		left = combineRange(left, right)
		if err != nil {
			return left, err
		}
	}
	return left, nil
}

// combineRange folds two single cells on the same sheet into a RangeNode
func combineRange(left, right Node) Node {
	l, lok := left.(*CellRefNode)
	r, rok := right.(*CellRefNode)
	if lok && rok && (r.Sheet == nil || sameSheetRef(l.Sheet, r.Sheet)) {
		return &RangeNode{Sheet: l.Sheet, Start: l.Ref, End: r.Ref, Kind: RangeCells, Position: span(left, right)}
	}
	return &BinaryOpNode{Op: BinOpRange, Left: left, Right: right, Position: span(left, right)}
}

func sameSheetRef(a, b *SheetRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return foldKey(a.Name) == foldKey(b.Name) && foldKey(a.LastName) == foldKey(b.LastName) && a.Book == b.Book
}

// parseReferencePostfix handles the spill operator and calls on lambda
// valued expressions
func (p *Parser) parseReferencePostfix() (Node, *ParseError) {
	startTok := p.current()
	node, err := p.parsePrimary()
	if err != nil {
		return node, err
	}
	for {
		tok := p.current()
		switch {
		case tok.Type == TokenHash:
			p.advance()
			node = &PostfixOpNode{
				Op:       PostfixSpill,
				Operand:  node,
				Position: NodePosition{Start: node.GetPosition().Start, End: tok.End},
			}
		case tok.Type == TokenLeftParen && !tok.SpaceBefore && isCallable(node, startTok):
			args, end, err := p.parseArguments()
			node = &CallNode{Callee: node, Args: args, Position: NodePosition{Start: node.GetPosition().Start, End: end}}
			if err != nil {
				return node, err
			}
		default:
			return node, nil
		}
	}
}

func isCallable(n Node, start Token) bool {
	switch n.(type) {
	case *LambdaNode, *CallNode, *FunctionCallNode:
		return true
	}
	return start.Type == TokenLeftParen
}

func (p *Parser) parsePrimary() (Node, *ParseError) {
	tok := p.current()
	pos := NodePosition{Start: tok.Start, End: tok.End}
	switch tok.Type {
	case TokenNumber:
		if node, ok := p.tryRowRange(nil); ok {
			return node, nil
		}
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return &ErrorNode{Code: ErrorCodeNum, Position: pos}, p.syntaxError(tok, "invalid number %q", tok.Value)
		}
		return &NumberNode{Value: f, Position: pos}, nil

	case TokenString:
		p.advance()
		return &StringNode{Value: tok.Value, Position: pos}, nil

	case TokenErrorLiteral:
		p.advance()
		return &ErrorNode{Code: errorLiterals[tok.Value], Position: pos}, nil

	case TokenLeftParen:
		return p.parseParenthesized()

	case TokenLeftBrace:
		return p.parseArray()

	case TokenSheet:
		return p.parseSheetQualified()

	case TokenBracket:
		p.advance()
		return p.parseStructured("", tok, tok.Start)

	case TokenIdentifier:
		return p.parseIdentifier(nil, tok.Start)

	case TokenEOF:
		return nil, p.syntaxError(tok, "unexpected end of formula")
	}
	p.advance()
	return nil, p.syntaxError(tok, "unexpected %s %q", tok.Type, tok.Value)
}

func (p *Parser) parseParenthesized() (Node, *ParseError) {
	open := p.advance()
	p.parenDepth++
	defer func() { p.parenDepth-- }()
	if p.parenDepth > MaxNestedParens {
		p.limit(ParseErrorNestedParens, NodePosition{Start: open.Start, End: open.End},
			"more than %d nested parentheses", MaxNestedParens)
	}
	node, err := p.parseExpression()
	if err != nil {
		return node, err
	}
	// a comma inside parentheses is the union operator
	for p.current().Type == TokenComma {
		p.advance()
		right, err := p.parseExpression()
		if right == nil {
			return node, err
		}
		node = &BinaryOpNode{Op: BinOpUnion, Left: node, Right: right, Position: span(node, right)}
		if err != nil {
			return node, err
		}
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return node, err
	}
	return node, nil
}

func (p *Parser) sheetRef(tok Token) *SheetRef {
	ref := &SheetRef{Name: tok.Value, LastName: tok.LastSheet, Book: tok.Book}
	if ref.Book != "" {
		p.warnings = append(p.warnings, ParseWarning{
			Span:    NodePosition{Start: tok.Start, End: tok.End},
			Message: "reference to external workbook [" + ref.Book + "] evaluates to #REF!",
		})
		return ref
	}
	if p.opts.ResolveSheet != nil {
		ref.ID, _ = p.opts.ResolveSheet(ref.Name)
		if ref.LastName != "" {
			ref.LastID, _ = p.opts.ResolveSheet(ref.LastName)
		}
	}
	return ref
}

func (p *Parser) parseSheetQualified() (Node, *ParseError) {
	tok := p.advance()
	sheet := p.sheetRef(tok)
	next := p.current()
	switch next.Type {
	case TokenIdentifier:
		return p.parseIdentifier(sheet, tok.Start)
	case TokenNumber:
		if node, ok := p.tryRowRange(sheet); ok {
			node.(*RangeNode).Position.Start = tok.Start
			return node, nil
		}
	}
	return nil, p.syntaxError(next, "expected a reference after sheet %q", tok.Value)
}

// tryRowRange parses whole-row ranges such as 1:3 or $2:$2
func (p *Parser) tryRowRange(sheet *SheetRef) (Node, bool) {
	first, colon, second := p.current(), p.peekToken(1), p.peekToken(2)
	if colon.Type != TokenColon || p.opts.Style != StyleA1 {
		return nil, false
	}
	r1, abs1, ok1 := parseRowPart(first)
	r2, abs2, ok2 := parseRowPart(second)
	if !ok1 || !ok2 {
		return nil, false
	}
	p.pos += 3
	start := p.a1Ref(CellRef{Row: r1, Col: -1, RowAbs: abs1})
	end := p.a1Ref(CellRef{Row: r2, Col: -1, RowAbs: abs2})
	return &RangeNode{
		Sheet:    sheet,
		Start:    start,
		End:      end,
		Kind:     RangeRows,
		Position: NodePosition{Start: first.Start, End: second.End},
	}, true
}

func parseRowPart(tok Token) (int32, bool, bool) {
	text := tok.Value
	abs := false
	switch tok.Type {
	case TokenNumber:
	case TokenIdentifier:
		if !strings.HasPrefix(text, "$") {
			return 0, false, false
		}
		abs = true
		text = text[1:]
	default:
		return 0, false, false
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil || n == 0 || n > uint64(DefaultMaxRows) {
		return 0, false, false
	}
	return int32(n - 1), abs, true
}

// parseColumnPart recognizes column letters with an optional $
func parseColumnPart(tok Token) (int32, bool, bool) {
	if tok.Type != TokenIdentifier {
		return 0, false, false
	}
	text := tok.Value
	abs := strings.HasPrefix(text, "$")
	text = strings.TrimPrefix(text, "$")
	for i := 0; i < len(text); i++ {
		if !isASCIILetter(text[i]) {
			return 0, false, false
		}
	}
	col, ok := ColumnIndex(text)
	if !ok || col >= DefaultMaxCols {
		return 0, false, false
	}
	return int32(col), abs, true
}

// a1Ref converts absolute indexes from A1 text into origin-relative form.
// components set to -1 are left alone.
func (p *Parser) a1Ref(ref CellRef) CellRef {
	out := ref
	if ref.Row >= 0 && !ref.RowAbs {
		out.Row = ref.Row - int32(p.opts.Origin.Row)
	}
	if ref.Col >= 0 && !ref.ColAbs {
		out.Col = ref.Col - int32(p.opts.Origin.Col)
	}
	return out
}

func (p *Parser) parseIdentifier(sheet *SheetRef, start int) (Node, *ParseError) {
	tok := p.current()
	name := tok.Value
	next := p.peekToken(1)

	if sheet == nil && next.Type == TokenLeftParen {
		return p.parseFunctionCall()
	}
	if sheet == nil && next.Type == TokenBracket && !next.SpaceBefore {
		p.pos += 2
		return p.parseStructured(name, next, tok.Start)
	}
	pos := NodePosition{Start: start, End: tok.End}
	upper := strings.ToUpper(name)
	if sheet == nil && (upper == "TRUE" || upper == "FALSE") {
		p.advance()
		return &BooleanNode{Value: upper == "TRUE", Position: pos}, nil
	}

	if p.opts.Style == StyleR1C1 {
		if looksLikeR1C1(name) {
			if node, ok := p.parseR1C1Reference(sheet, start); ok {
				return node, nil
			}
		}
	} else {
		if node, ok := p.tryColumnRange(sheet, start); ok {
			return node, nil
		}
		if node, ok := p.tryRowRange(sheet); ok {
			node.(*RangeNode).Position.Start = start
			return node, nil
		}
		bare := strings.ReplaceAll(name, "$", "")
		if looksLikeA1(bare) {
			if ref, err := ParseA1(name); err == nil && ref.Row >= 0 && ref.Col >= 0 {
				p.advance()
				return &CellRefNode{Sheet: sheet, Ref: p.a1Ref(ref), Position: pos}, nil
			}
		}
		if beyondGridA1(bare) {
			p.advance()
			return &ErrorNode{Code: ErrorCodeRef, Position: pos}, nil
		}
	}

	p.advance()
	if !isValidName(name) {
		return &NameNode{Name: name, Sheet: sheet, Position: pos},
			newParseError(ParseErrorInvalidName, pos, "invalid name %q", name)
	}
	return &NameNode{Name: name, Sheet: sheet, Position: pos}, nil
}

// tryColumnRange parses whole-column ranges such as A:A or $B:$D
func (p *Parser) tryColumnRange(sheet *SheetRef, start int) (Node, bool) {
	first, colon, second := p.current(), p.peekToken(1), p.peekToken(2)
	if colon.Type != TokenColon {
		return nil, false
	}
	c1, abs1, ok1 := parseColumnPart(first)
	c2, abs2, ok2 := parseColumnPart(second)
	if !ok1 || !ok2 {
		return nil, false
	}
	p.pos += 3
	return &RangeNode{
		Sheet:    sheet,
		Start:    p.a1Ref(CellRef{Row: -1, Col: c1, ColAbs: abs1}),
		End:      p.a1Ref(CellRef{Row: -1, Col: c2, ColAbs: abs2}),
		Kind:     RangeColumns,
		Position: NodePosition{Start: start, End: second.End},
	}, true
}

func (p *Parser) parseR1C1Reference(sheet *SheetRef, start int) (Node, bool) {
	tok := p.current()
	ref, hasRow, hasCol, err := ParseR1C1(tok.Value)
	if err != nil {
		return nil, false
	}
	if hasRow && hasCol {
		p.advance()
		return &CellRefNode{Sheet: sheet, Ref: ref, Position: NodePosition{Start: start, End: tok.End}}, true
	}
	kind := RangeRows
	if hasCol {
		kind = RangeColumns
	}
	node := &RangeNode{Sheet: sheet, Start: ref, End: ref, Kind: kind, Position: NodePosition{Start: start, End: tok.End}}
	p.advance()
	if p.current().Type == TokenColon && p.peekToken(1).Type == TokenIdentifier {
		end, r2, c2, err := ParseR1C1(p.peekToken(1).Value)
		if err == nil && r2 == hasRow && c2 == hasCol {
			node.End = end
			node.Position.End = p.peekToken(1).End
			p.pos += 2
		}
	}
	return node, true
}

// isValidName checks defined-name syntax: a letter, underscore or
// backslash followed by letters, digits, underscores and periods
func isValidName(name string) bool {
	if name == "" || strings.ContainsRune(name, '$') {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !(r == '_' || r == '\\' || isLetterRune(r)) {
				return false
			}
			continue
		}
		if !(isLetterRune(r) || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == '\\' || r == '?') {
			return false
		}
	}
	return true
}

func isLetterRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 0x7f
}

// canonicalFunctionName upper-cases a function name and removes the
// future-function prefixes written by newer file formats
func canonicalFunctionName(name string) string {
	upper := strings.ToUpper(name)
	for _, prefix := range []string{functionNamePrefix1, functionNamePrefix2, functionNamePrefix3, functionNamePrefix4} {
		if strings.HasPrefix(upper, prefix) {
			return upper[len(prefix):]
		}
	}
	return upper
}

func (p *Parser) parseFunctionCall() (Node, *ParseError) {
	nameTok := p.advance()
	name := canonicalFunctionName(nameTok.Value)

	p.callDepth++
	defer func() { p.callDepth-- }()
	if p.callDepth > MaxNestedCalls {
		p.limit(ParseErrorNestedCalls, NodePosition{Start: nameTok.Start, End: nameTok.End},
			"more than %d nested function calls", MaxNestedCalls)
	}

	args, end, err := p.parseArguments()
	pos := NodePosition{Start: nameTok.Start, End: end}
	switch name {
	case "LET":
		node, letErr := p.buildLet(args, pos)
		if err == nil {
			err = letErr
		}
		return node, err
	case "LAMBDA":
		node, lamErr := p.buildLambda(args, pos)
		if err == nil {
			err = lamErr
		}
		return node, err
	}
	return &FunctionCallNode{Name: name, Written: nameTok.Value, Args: args, Position: pos}, err
}

// parseArguments parses a parenthesized, comma-separated argument list.
// empty slots become MissingNode.
func (p *Parser) parseArguments() ([]Node, int, *ParseError) {
	open := p.advance()
	var args []Node
	end := open.End
	if p.current().Type == TokenRightParen {
		return args, p.advance().End, nil
	}
	for {
		tok := p.current()
		if tok.Type == TokenComma || tok.Type == TokenRightParen {
			args = append(args, &MissingNode{Position: NodePosition{Start: tok.Start, End: tok.Start}})
		} else {
			arg, err := p.parseExpression()
			if arg != nil {
				args = append(args, arg)
				end = arg.GetPosition().End
			}
			if err != nil {
				return args, end, err
			}
		}
		if p.current().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if len(args) > MaxFunctionArgs {
		p.limit(ParseErrorTooManyArgs, NodePosition{Start: open.Start, End: end},
			"%d arguments, the limit is %d", len(args), MaxFunctionArgs)
	}
	closeTok, err := p.expect(TokenRightParen)
	if err != nil {
		return args, end, err
	}
	return args, closeTok.End, nil
}

// bindingName validates a LET or LAMBDA name. cell references and
// function-like spellings are rejected.
func bindingName(n Node) (string, bool) {
	name, ok := n.(*NameNode)
	if !ok || name.Sheet != nil {
		return "", false
	}
	if looksLikeA1(name.Name) || beyondGridA1(name.Name) || looksLikeR1C1(name.Name) || strings.Contains(name.Name, ".") {
		return "", false
	}
	return name.Name, true
}

func (p *Parser) buildLet(args []Node, pos NodePosition) (Node, *ParseError) {
	node := &LetNode{Position: pos}
	if len(args) < 3 || len(args)%2 == 0 {
		node.Body = &ErrorNode{Code: ErrorCodeValue, Position: pos}
		return node, newParseError(ParseErrorSyntax, pos, "LET needs name/value pairs followed by a calculation")
	}
	for i := 0; i+1 < len(args); i += 2 {
		name, ok := bindingName(args[i])
		if !ok {
			return node, newParseError(ParseErrorInvalidName, args[i].GetPosition(), "LET names must be identifiers")
		}
		node.Names = append(node.Names, name)
		node.Values = append(node.Values, args[i+1])
	}
	node.Body = args[len(args)-1]
	return node, nil
}

func (p *Parser) buildLambda(args []Node, pos NodePosition) (Node, *ParseError) {
	node := &LambdaNode{Position: pos}
	if len(args) == 0 {
		node.Body = &ErrorNode{Code: ErrorCodeValue, Position: pos}
		return node, newParseError(ParseErrorSyntax, pos, "LAMBDA needs a calculation")
	}
	seen := make(map[string]struct{}, len(args))
	for _, a := range args[:len(args)-1] {
		name, ok := bindingName(a)
		if !ok {
			return node, newParseError(ParseErrorInvalidName, a.GetPosition(), "LAMBDA parameters must be identifiers")
		}
		key := foldKey(name)
		if _, dup := seen[key]; dup {
			return node, newParseError(ParseErrorInvalidName, a.GetPosition(), "duplicate LAMBDA parameter %q", name)
		}
		seen[key] = struct{}{}
		node.Params = append(node.Params, name)
	}
	node.Body = args[len(args)-1]
	return node, nil
}

// parseArray parses {1,2;3,4}. rows must be the same length.
func (p *Parser) parseArray() (Node, *ParseError) {
	open := p.advance()
	node := &ArrayNode{Position: NodePosition{Start: open.Start, End: open.End}}
	var rows [][]Node
	row := []Node{}
	for {
		elem, err := p.parseArrayElement()
		if err != nil {
			return node, err
		}
		row = append(row, elem)
		tok := p.current()
		switch tok.Type {
		case TokenComma:
			p.advance()
			continue
		case TokenSemicolon:
			p.advance()
			rows = append(rows, row)
			row = []Node{}
			continue
		case TokenRightBrace:
			p.advance()
			rows = append(rows, row)
			node.Position.End = tok.End
		default:
			return node, p.syntaxError(tok, "expected ',', ';' or '}' in array")
		}
		break
	}
	node.Rows = len(rows)
	node.Cols = len(rows[0])
	for _, r := range rows {
		if len(r) != node.Cols {
			return node, newParseError(ParseErrorArrayShape, node.Position, "array rows must all have %d columns", node.Cols)
		}
		node.Elements = append(node.Elements, r...)
	}
	return node, nil
}

func (p *Parser) parseArrayElement() (Node, *ParseError) {
	tok := p.current()
	pos := NodePosition{Start: tok.Start, End: tok.End}
	switch tok.Type {
	case TokenNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.syntaxError(tok, "invalid number %q", tok.Value)
		}
		return &NumberNode{Value: f, Position: pos}, nil
	case TokenOperator:
		if tok.Value == "-" || tok.Value == "+" {
			p.advance()
			num := p.current()
			if num.Type != TokenNumber {
				return nil, p.syntaxError(num, "expected a number in array")
			}
			p.advance()
			f, err := strconv.ParseFloat(num.Value, 64)
			if err != nil {
				return nil, p.syntaxError(num, "invalid number %q", num.Value)
			}
			if tok.Value == "-" {
				f = -f
			}
			return &NumberNode{Value: f, Position: NodePosition{Start: tok.Start, End: num.End}}, nil
		}
	case TokenString:
		p.advance()
		return &StringNode{Value: tok.Value, Position: pos}, nil
	case TokenErrorLiteral:
		p.advance()
		return &ErrorNode{Code: errorLiterals[tok.Value], Position: pos}, nil
	case TokenIdentifier:
		switch strings.ToUpper(tok.Value) {
		case "TRUE", "FALSE":
			p.advance()
			return &BooleanNode{Value: strings.EqualFold(tok.Value, "TRUE"), Position: pos}, nil
		}
	case TokenLeftBrace:
		// arrays never nest; the inner literal collapses to #VALUE!
		inner, err := p.parseArray()
		if err != nil {
			return nil, err
		}
		return &ErrorNode{Code: ErrorCodeValue, Position: inner.GetPosition()}, nil
	}
	return nil, p.syntaxError(tok, "array elements must be constants")
}

// parseStructured parses the bracket body of a structured reference
func (p *Parser) parseStructured(table string, body Token, start int) (Node, *ParseError) {
	node := &StructuredRefNode{
		Table:     table,
		Position:  NodePosition{Start: start, End: body.End},
		Canonical: body.Value,
	}
	inner := body.Value[1 : len(body.Value)-1]
	if err := parseTableSpecifier(node, inner); err != nil {
		return node, newParseError(ParseErrorSyntax, node.Position, "%s", err.Error())
	}
	return node, nil
}

// parseTableSpecifier fills the item and column selection of node from the
// text between the outer brackets
func parseTableSpecifier(node *StructuredRefNode, inner string) error {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		node.Items = TableItemData
		return nil
	}
	if strings.HasPrefix(inner, "@") {
		node.Items = TableItemThisRow
		rest := strings.TrimSpace(inner[1:])
		if rest == "" {
			return nil
		}
		if strings.HasPrefix(rest, "[") {
			parts, err := splitBracketParts(rest)
			if err != nil {
				return err
			}
			return applyColumnParts(node, parts)
		}
		node.FirstCol = unescapeColumn(rest)
		return nil
	}
	if !strings.HasPrefix(inner, "[") {
		if item, ok := tableItem(inner); ok {
			node.Items = item
			return nil
		}
		node.Items = TableItemData
		node.FirstCol = unescapeColumn(inner)
		return nil
	}
	parts, err := splitBracketParts(inner)
	if err != nil {
		return err
	}
	var cols []string
	for _, part := range parts {
		if item, ok := tableItem(part); ok {
			node.Items |= item
			continue
		}
		cols = append(cols, part)
	}
	if node.Items == 0 {
		node.Items = TableItemData
	}
	return applyColumnParts(node, cols)
}

func applyColumnParts(node *StructuredRefNode, parts []string) error {
	switch len(parts) {
	case 0:
	case 1:
		first, last, isRange := strings.Cut(parts[0], "\x00")
		node.FirstCol = unescapeColumn(first)
		if isRange {
			node.LastCol = unescapeColumn(last)
		}
	default:
		return NewApplicationError(InvalidArgument, "only one column or column range is allowed")
	}
	return nil
}

// splitBracketParts splits "[a],[b]:[c]" into parts; a column range is
// returned as one part with the two names joined by NUL
func splitBracketParts(s string) ([]string, error) {
	var parts []string
	i := 0
	pendingRange := false
	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == ',':
			i++
		case s[i] == ':':
			pendingRange = true
			i++
		case s[i] == '[':
			j := i + 1
			for j < len(s) && s[j] != ']' {
				if s[j] == '\'' {
					j++
				}
				j++
			}
			if j >= len(s) {
				return nil, NewApplicationError(InvalidArgument, "unterminated column specifier")
			}
			part := s[i+1 : j]
			if pendingRange && len(parts) > 0 {
				parts[len(parts)-1] += "\x00" + part
				pendingRange = false
			} else {
				parts = append(parts, part)
			}
			i = j + 1
		default:
			return nil, NewApplicationError(InvalidArgument, "unexpected character in structured reference")
		}
	}
	return parts, nil
}

func tableItem(s string) (TableItem, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "#ALL":
		return TableItemAll, true
	case "#DATA":
		return TableItemData, true
	case "#HEADERS":
		return TableItemHeaders, true
	case "#TOTALS":
		return TableItemTotals, true
	case "#THIS ROW":
		return TableItemThisRow, true
	}
	return 0, false
}

// unescapeColumn removes the ' escapes used for special characters in
// column names
func unescapeColumn(s string) string {
	if !strings.Contains(s, "'") {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return strings.TrimSpace(b.String())
}
