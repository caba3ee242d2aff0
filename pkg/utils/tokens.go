// Package utils provides shared helpers for the Slate runtime.
package utils

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for prompt budgeting. Encodings are cached
// process-wide because tiktoken initialization is expensive.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// NewTokenCounter creates a counter for the given encoding name. Unknown
// encodings fall back to cl100k_base, which is close enough for budgeting.
func NewTokenCounter(encodingName string) (*TokenCounter, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := encodingCache[encodingName]; ok {
		return &TokenCounter{encoding: cached}, nil
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	encodingCache[encodingName] = encoding
	return &TokenCounter{encoding: encoding}, nil
}

// Count returns the token count of the text.
func (t *TokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// TruncateToBudget trims text from the front until it fits the token budget.
// The head is dropped rather than the tail because recent history matters
// more than old plan versions.
func (t *TokenCounter) TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return t.encoding.Decode(tokens[len(tokens)-budget:])
}
