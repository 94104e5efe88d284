package calc

import (
	"strings"

	"github.com/xuri/efp"
)

// HighlightKind classifies formula text for editor colouring
type HighlightKind uint8

const (
	HighlightUnknown HighlightKind = iota
	HighlightNumber
	HighlightText
	HighlightLogical
	HighlightError
	HighlightReference
	HighlightFunction
	HighlightUnknownFunction
	HighlightOperator
	HighlightSeparator
	HighlightParen
	HighlightWhitespace
)

// HighlightToken is one classified piece of formula text
type HighlightToken struct {
	Text string
	Kind HighlightKind
}

// HighlightTokens splits formula text into classified tokens using the
// Excel formula tokenizer. it never fails; text it cannot classify is
// reported as HighlightUnknown.
func HighlightTokens(formula string) []HighlightToken {
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	ps := efp.ExcelParser()
	tokens := ps.Parse(formula)
	out := make([]HighlightToken, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, HighlightToken{Text: tok.TValue, Kind: highlightKind(tok)})
	}
	return out
}

func highlightKind(tok efp.Token) HighlightKind {
	switch tok.TType {
	case efp.TokenTypeOperand:
		switch tok.TSubType {
		case efp.TokenSubTypeNumber:
			return HighlightNumber
		case efp.TokenSubTypeText:
			return HighlightText
		case efp.TokenSubTypeLogical:
			return HighlightLogical
		case efp.TokenSubTypeError:
			return HighlightError
		case efp.TokenSubTypeRange:
			return HighlightReference
		}
	case efp.TokenTypeFunction:
		if tok.TSubType == efp.TokenSubTypeStop {
			return HighlightParen
		}
		if _, ok := LookupFunction(canonicalFunctionName(tok.TValue)); ok {
			return HighlightFunction
		}
		switch canonicalFunctionName(tok.TValue) {
		case "LET", "LAMBDA":
			return HighlightFunction
		}
		return HighlightUnknownFunction
	case efp.TokenTypeSubexpression:
		return HighlightParen
	case efp.TokenTypeArgument:
		return HighlightSeparator
	case efp.TokenTypeOperatorPrefix, efp.TokenTypeOperatorInfix, efp.TokenTypeOperatorPostfix:
		return HighlightOperator
	case efp.TokenTypeWhitespace:
		return HighlightWhitespace
	}
	return HighlightUnknown
}
