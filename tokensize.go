package calc

import "unicode/utf8"

// estimated sizes of the parsed-expression tokens Excel stores
const (
	tokenSizeNumber    = 8
	tokenSizeTextExtra = 3
	tokenSizeReference = 5
	tokenSizeFunction  = 4
	tokenSizeOperator  = 3
)

// estimateTokenSize approximates how many bytes Excel needs to store the
// tokenized formula
func estimateTokenSize(tokens []Token) int {
	size := 0
	for i, tok := range tokens {
		switch tok.Type {
		case TokenEOF:
		case TokenNumber:
			size += tokenSizeNumber
		case TokenString:
			size += utf8.RuneCountInString(tok.Value) + tokenSizeTextExtra
		case TokenIdentifier:
			if i+1 < len(tokens) && tokens[i+1].Type == TokenLeftParen {
				size += tokenSizeFunction
			} else {
				size += tokenSizeReference
			}
		case TokenSheet, TokenBracket:
			size += tokenSizeReference
		default:
			size += tokenSizeOperator
		}
	}
	return size
}
