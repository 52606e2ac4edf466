package embedding

import (
	"hash/fnv"

	"github.com/hyperjump/codematch/internal/keyword"
)

const (
	clsTokenID = 101
	sepTokenID = 102
	vocabSize  = 30000
)

// Tokenizer produces fixed-length BERT-style inputs (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
	// TokenizePair encodes "[CLS] a [SEP] b [SEP]" with token type 1 on the b segment.
	TokenizePair(a, b string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-level tokenizer with hash-based token IDs. It keeps the model
// runnable when no tokenizer.json is available, at the cost of meaningless vocabulary ids.
type SimpleTokenizer struct{}

// Tokenize encodes one segment padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	return t.encode(keyword.Tokenize(text), nil, maxTokens)
}

// TokenizePair encodes a query/candidate pair padded to maxTokens.
func (t *SimpleTokenizer) TokenizePair(a, b string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	return t.encode(keyword.Tokenize(a), keyword.Tokenize(b), maxTokens)
}

func (t *SimpleTokenizer) encode(first, second []string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	pos := 0
	put := func(id int64, typ int64) bool {
		if pos >= maxTokens {
			return false
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		tokenTypeIDs[pos] = typ
		pos++
		return true
	}
	put(clsTokenID, 0)
	// Reserve room for the trailing separators.
	reserve := 1
	if second != nil {
		reserve = 2
	}
	budget := maxTokens - 1 - reserve
	firstBudget := budget
	if second != nil {
		firstBudget = budget / 2
		if len(second) < budget-firstBudget {
			firstBudget = budget - len(second)
		}
	}
	for i, w := range first {
		if i >= firstBudget {
			break
		}
		put(wordID(w), 0)
	}
	put(sepTokenID, 0)
	if second == nil {
		return inputIDs, attentionMask, tokenTypeIDs
	}
	remaining := maxTokens - pos - 1
	for i, w := range second {
		if i >= remaining {
			break
		}
		put(wordID(w), 1)
	}
	put(sepTokenID, 1)
	return inputIDs, attentionMask, tokenTypeIDs
}

func wordID(w string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	// Keep ids clear of the special-token range.
	return int64(1000 + h.Sum32()%(vocabSize-1000))
}
