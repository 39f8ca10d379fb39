package router

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates token counts for budget accounting when a backend
// does not report usage (local inference servers frequently return zeros).
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (t *tokenCounter) encoder() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel("gpt-4o")
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}
		t.enc = enc
	})
	return t.enc
}

// Count returns the token count for text, falling back to a bytes/4 estimate
// when no encoder is available.
func (t *tokenCounter) Count(text string) int64 {
	if text == "" {
		return 0
	}
	if enc := t.encoder(); enc != nil {
		return int64(len(enc.Encode(text, nil, nil)))
	}
	return int64(len(text) / 4)
}
