package embedding

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer wraps a HuggingFace tokenizer.json (WordPiece, BPE, Unigram) loaded with sugarme/tokenizer.
type HFTokenizer struct {
	tk  *tokenizer.Tokenizer
	cls int
	sep int
}

// NewHFTokenizer loads the tokenizer definition at path.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	h := &HFTokenizer{tk: tk, cls: clsTokenID, sep: sepTokenID}
	if id, ok := specialID(tk, "[CLS]", "<s>"); ok {
		h.cls = id
	}
	if id, ok := specialID(tk, "[SEP]", "</s>"); ok {
		h.sep = id
	}
	return h, nil
}

func specialID(tk *tokenizer.Tokenizer, names ...string) (int, bool) {
	for _, n := range names {
		if id, ok := tk.TokenToId(n); ok {
			return id, true
		}
	}
	return 0, false
}

// NewTokenizer returns an HFTokenizer for path, or SimpleTokenizer when path is empty.
func NewTokenizer(path string) (Tokenizer, error) {
	if path == "" {
		return &SimpleTokenizer{}, nil
	}
	return NewHFTokenizer(path)
}

// Tokenize encodes text with special tokens. An encoding failure yields a bare [CLS][SEP] input.
func (h *HFTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	enc, err := h.tk.EncodeSingle(text, true)
	if err != nil {
		return (&SimpleTokenizer{}).Tokenize("", maxTokens)
	}
	return pad(enc.Ids, enc.TypeIds, maxTokens, h.sep)
}

// TokenizePair encodes a (query, candidate) pair, truncating the longer segment first.
func (h *HFTokenizer) TokenizePair(a, b string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	ea, errA := h.tk.EncodeSingle(a, false)
	eb, errB := h.tk.EncodeSingle(b, false)
	if errA != nil || errB != nil {
		return (&SimpleTokenizer{}).TokenizePair("", "", maxTokens)
	}
	first, second := truncatePair(ea.Ids, eb.Ids, maxTokens-3)
	ids := make([]int, 0, len(first)+len(second)+3)
	types := make([]int, 0, cap(ids))
	ids = append(ids, h.cls)
	ids = append(ids, first...)
	ids = append(ids, h.sep)
	for range len(first) + 2 {
		types = append(types, 0)
	}
	ids = append(ids, second...)
	ids = append(ids, h.sep)
	for range len(second) + 1 {
		types = append(types, 1)
	}
	return pad(ids, types, maxTokens, h.sep)
}

// truncatePair drops tokens from the end of the longer sequence until both fit in budget.
func truncatePair(a, b []int, budget int) ([]int, []int) {
	if budget < 0 {
		budget = 0
	}
	for len(a)+len(b) > budget {
		if len(a) >= len(b) {
			a = a[:len(a)-1]
		} else {
			b = b[:len(b)-1]
		}
	}
	return a, b
}

func pad(ids, types []int, maxTokens, sep int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	n := len(ids)
	if n > maxTokens {
		n = maxTokens
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		attentionMask[i] = 1
		if i < len(types) {
			tokenTypeIDs[i] = int64(types[i])
		}
	}
	if len(ids) > maxTokens {
		inputIDs[maxTokens-1] = int64(sep)
	}
	return inputIDs, attentionMask, tokenTypeIDs
}
