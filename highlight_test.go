package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func highlightKinds(formula string) []HighlightKind {
	var kinds []HighlightKind
	for _, tok := range HighlightTokens(formula) {
		kinds = append(kinds, tok.Kind)
	}
	return kinds
}

func TestHighlightTokens(t *testing.T) {
	tokens := HighlightTokens("=SUM(A1,2)")
	if assert.Len(t, tokens, 5) {
		assert.Equal(t, HighlightToken{Text: "SUM", Kind: HighlightFunction}, tokens[0])
		assert.Equal(t, HighlightToken{Text: "A1", Kind: HighlightReference}, tokens[1])
	}
	assert.Equal(t, []HighlightKind{
		HighlightFunction, HighlightReference, HighlightSeparator, HighlightNumber, HighlightParen,
	}, highlightKinds("=SUM(A1,2)"))

	// the leading equals sign is optional
	assert.Equal(t, highlightKinds("=SUM(A1,2)"), highlightKinds("SUM(A1,2)"))

	assert.Equal(t, HighlightUnknownFunction, highlightKinds("=NOPE(1)")[0])
	assert.Equal(t, HighlightFunction, highlightKinds("=_xlfn.XLOOKUP(1,A1:A2,B1:B2)")[0])
	assert.Equal(t, []HighlightKind{HighlightText, HighlightOperator, HighlightLogical}, highlightKinds(`="a"&TRUE`))
}
