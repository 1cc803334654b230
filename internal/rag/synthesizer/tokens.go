package synthesizer

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts prompt tokens with a tiktoken encoding, or estimates
// one token per four runes when no encoding is loaded.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named encoding. tiktoken fetches its ranks on
// first use, so an unavailable encoding degrades to the estimate and the error
// is returned for logging.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		return &TokenCounter{}, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &TokenCounter{}, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Exact reports whether counts come from a real encoding.
func (t *TokenCounter) Exact() bool {
	return t != nil && t.enc != nil
}

func (t *TokenCounter) Count(text string) int {
	if t.Exact() {
		return len(t.enc.EncodeOrdinary(text))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
