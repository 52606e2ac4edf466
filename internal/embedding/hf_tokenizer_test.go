package embedding

import (
	"reflect"
	"testing"
)

func TestTruncatePair(t *testing.T) {
	tests := []struct {
		name         string
		a, b         []int
		budget       int
		wantA, wantB []int
	}{
		{"fits", []int{1, 2}, []int{3}, 5, []int{1, 2}, []int{3}},
		{"trims longer first", []int{1, 2, 3, 4}, []int{5}, 3, []int{1, 2}, []int{5}},
		{"trims both evenly", []int{1, 2, 3}, []int{4, 5, 6}, 4, []int{1, 2}, []int{4, 5}},
		{"negative budget", []int{1}, []int{2}, -1, []int{}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := truncatePair(tt.a, tt.b, tt.budget)
			if !reflect.DeepEqual(a, tt.wantA) || !reflect.DeepEqual(b, tt.wantB) {
				t.Errorf("truncatePair = %v, %v; want %v, %v", a, b, tt.wantA, tt.wantB)
			}
		})
	}
}

func TestPad(t *testing.T) {
	ids, mask, types := pad([]int{101, 7, 102}, []int{0, 0, 0}, 5, sepTokenID)
	if !reflect.DeepEqual(ids, []int64{101, 7, 102, 0, 0}) {
		t.Errorf("ids = %v", ids)
	}
	if !reflect.DeepEqual(mask, []int64{1, 1, 1, 0, 0}) {
		t.Errorf("mask = %v", mask)
	}
	if !reflect.DeepEqual(types, []int64{0, 0, 0, 0, 0}) {
		t.Errorf("types = %v", types)
	}

	ids, _, _ = pad([]int{101, 7, 8, 9, 102}, nil, 3, sepTokenID)
	if ids[2] != sepTokenID {
		t.Errorf("overlong input should end with SEP, got %v", ids)
	}
}

func TestNewTokenizer_EmptyPathIsSimple(t *testing.T) {
	tok, err := NewTokenizer("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*SimpleTokenizer); !ok {
		t.Errorf("expected *SimpleTokenizer, got %T", tok)
	}
	if _, err := NewTokenizer("/nonexistent/tokenizer.json"); err == nil {
		t.Error("expected error for missing tokenizer file")
	}
}
