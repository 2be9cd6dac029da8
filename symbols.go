package main

import (
	"strings"

	"github.com/pkg/errors"
)

// Vocabulary maps equation words to token ids. Equations are written in
// prefix notation with whitespace between words, e.g.
//
//	add mul -1 u_x mul 0.01 u_xx
//
// Id order is fixed by the word list so a model's symbol embeddings stay
// aligned with the words they were built for.
type Vocabulary struct {
	words    []string       // id -> word
	ids      map[string]int // word -> id
	PadIndex int
	UnkIndex int
}

const (
	padWord = "<pad>"
	unkWord = "<unk>"
)

// NewVocabulary builds a vocabulary with <pad> and <unk> at ids 0 and 1
// followed by words in order. Duplicates are rejected.
func NewVocabulary(words []string) (*Vocabulary, error) {
	v := &Vocabulary{
		words:    []string{padWord, unkWord},
		ids:      map[string]int{padWord: 0, unkWord: 1},
		PadIndex: 0,
		UnkIndex: 1,
	}
	for _, w := range words {
		if _, dup := v.ids[w]; dup {
			return nil, errors.Errorf("vocabulary: duplicate word %q", w)
		}
		if w == "" || strings.ContainsAny(w, " \t\n") {
			return nil, errors.Errorf("vocabulary: invalid word %q", w)
		}
		v.ids[w] = len(v.words)
		v.words = append(v.words, w)
	}
	return v, nil
}

// DefaultVocabulary covers the operators, variables and constants used by
// the 1D PDE families (heat, advection, Burgers, KdV, reaction-diffusion,
// Allen-Cahn, Fisher-KPP, wave, Klein-Gordon, sine-Gordon, ...).
func DefaultVocabulary() *Vocabulary {
	words := []string{
		// operators
		"add", "sub", "mul", "div", "pow", "neg", "inv",
		"sqrt", "exp", "log", "sin", "cos", "tanh", "abs",
		// variables and derivatives
		"x", "t", "u", "u_x", "u_xx", "u_xxx", "u_xxxx", "u_t", "u_tt",
		// constants
		"pi", "E",
		"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		"-1", "-2", "0.5", "-0.5", "0.1", "0.01", "0.001",
		// structure
		"=", "<eq>", "</eq>", "INT+", "INT-", ".", "e",
	}
	v, err := NewVocabulary(words)
	if err != nil {
		panic(err)
	}
	return v
}

// Size returns the number of words including special tokens.
func (v *Vocabulary) Size() int {
	return len(v.words)
}

// Word returns the word for id, or <unk> when out of range.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return unkWord
	}
	return v.words[id]
}

// Tokenize splits a prefix-notation expression into words.
func Tokenize(expr string) []string {
	return strings.Fields(expr)
}

// Encode maps words to ids, unknown words to UnkIndex.
func (v *Vocabulary) Encode(words []string) []int {
	ids := make([]int, len(words))
	for i, w := range words {
		id, ok := v.ids[w]
		if !ok {
			id = v.UnkIndex
		}
		ids[i] = id
	}
	return ids
}

// Decode maps ids back to words, dropping padding.
func (v *Vocabulary) Decode(ids []int) []string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == v.PadIndex {
			continue
		}
		words = append(words, v.Word(id))
	}
	return words
}

// Batch tokenizes and encodes exprs, right-pads every row to the longest
// and returns the ids with their padding mask.
func (v *Vocabulary) Batch(exprs []string) ([][]int, [][]bool) {
	rows := make([][]int, len(exprs))
	lengths := make([]int, len(exprs))
	maxLen := 0
	for i, expr := range exprs {
		rows[i] = v.Encode(Tokenize(expr))
		lengths[i] = len(rows[i])
		if lengths[i] > maxLen {
			maxLen = lengths[i]
		}
	}

	for i, row := range rows {
		for len(row) < maxLen {
			row = append(row, v.PadIndex)
		}
		rows[i] = row
	}
	return rows, PaddingMask(lengths, maxLen)
}
