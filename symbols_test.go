package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVocabularySpecialTokens(t *testing.T) {
	v, err := NewVocabulary([]string{"add", "u_x"})
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	if v.PadIndex != 0 || v.UnkIndex != 1 {
		t.Errorf("expected pad=0 unk=1, got pad=%d unk=%d", v.PadIndex, v.UnkIndex)
	}
	if v.Size() != 4 {
		t.Errorf("expected size 4, got %d", v.Size())
	}
	if v.Word(2) != "add" || v.Word(99) != unkWord {
		t.Errorf("unexpected words %q, %q", v.Word(2), v.Word(99))
	}
}

func TestVocabularyRejectsBadWords(t *testing.T) {
	for _, words := range [][]string{
		{"add", "add"},
		{"<pad>"},
		{"two words"},
		{""},
	} {
		if _, err := NewVocabulary(words); err == nil {
			t.Errorf("NewVocabulary(%q) should fail", words)
		}
	}
}

func TestVocabularyEncodeDecode(t *testing.T) {
	v := DefaultVocabulary()
	words := Tokenize("u_t = add mul 0.01 u_xx  mystery")

	ids := v.Encode(words)
	if ids[len(ids)-1] != v.UnkIndex {
		t.Errorf("unknown word should map to UnkIndex, got %d", ids[len(ids)-1])
	}

	want := []string{"u_t", "=", "add", "mul", "0.01", "u_xx", unkWord}
	if diff := cmp.Diff(want, v.Decode(append(ids, v.PadIndex, v.PadIndex))); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestVocabularyBatch(t *testing.T) {
	v := DefaultVocabulary()
	ids, mask := v.Batch([]string{"u_t = u_xx", "u_t = mul -1 u_x"})

	if len(ids) != 2 || len(ids[0]) != 6 || len(ids[1]) != 6 {
		t.Fatalf("expected two rows of 6 ids, got %v", ids)
	}
	if ids[0][5] != v.PadIndex {
		t.Errorf("short row should be right-padded, got %v", ids[0])
	}
	want := [][]bool{
		{false, false, false, true, true, true},
		{false, false, false, false, false, false},
	}
	if diff := cmp.Diff(want, mask); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(MaskFromTokens(ids, v.PadIndex), mask); diff != "" {
		t.Errorf("mask should agree with pad positions (-fromTokens +batch):\n%s", diff)
	}
}
