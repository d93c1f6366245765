package embedding

import (
	"testing"
)

func TestSimpleTokenizer(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := tok.Tokenize("hello world", 8)
	if len(ids) != 8 || len(mask) != 8 || len(types) != 8 {
		t.Fatalf("lengths = %d/%d/%d, want 8", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("ids[0] = %d, want CLS (101)", ids[0])
	}
	// CLS + 2 words + SEP attended.
	var attended int64
	for _, m := range mask {
		attended += m
	}
	if attended != 4 {
		t.Errorf("attended tokens = %d, want 4", attended)
	}
	if ids[3] != 102 {
		t.Errorf("ids[3] = %d, want SEP (102)", ids[3])
	}
}

func TestSimpleTokenizer_TruncatesLongInput(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, _ := tok.Tokenize("one two three four five six seven eight", 4)
	if len(ids) != 4 {
		t.Fatalf("len = %d, want 4", len(ids))
	}
	var attended int64
	for _, m := range mask {
		attended += m
	}
	if attended != 4 {
		t.Errorf("attended = %d, want all 4 positions used", attended)
	}
}

func TestSimpleTokenizer_Deterministic(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _, _ := tok.Tokenize("stable input", 16)
	b, _, _ := tok.Tokenize("stable input", 16)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("tokenization is not deterministic")
		}
	}
}
