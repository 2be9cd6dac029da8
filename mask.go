package main

// Key padding masks. A mask row holds one bool per sequence position and
// true marks a padded position that attention must ignore. A nil row means
// nothing is padded.

// PaddingMask builds masks from sequence lengths: row b is true at every
// position >= lengths[b].
func PaddingMask(lengths []int, maxLen int) [][]bool {
	masks := make([][]bool, len(lengths))
	for b, n := range lengths {
		row := make([]bool, maxLen)
		for i := n; i < maxLen; i++ {
			row[i] = true
		}
		masks[b] = row
	}
	return masks
}

// MaskFromTokens marks every position holding padIndex.
func MaskFromTokens(tokens [][]int, padIndex int) [][]bool {
	masks := make([][]bool, len(tokens))
	for b, row := range tokens {
		m := make([]bool, len(row))
		for i, id := range row {
			m[i] = id == padIndex
		}
		masks[b] = m
	}
	return masks
}

// ConcatMasks joins the masks of two concatenated sequences of lengths
// len0 and len1. A nil input counts as unpadded. The result is nil when
// both inputs are nil.
func ConcatMasks(m0 []bool, len0 int, m1 []bool, len1 int) []bool {
	if m0 == nil && m1 == nil {
		return nil
	}

	out := make([]bool, len0+len1)
	copy(out, m0)
	copy(out[len0:], m1)
	return out
}
