package datasets

// rightPadding lays out seqs as a flat (len(seqs), maxLen) buffer, filling
// positions past each sequence with pad.
func rightPadding(seqs [][]int64, pad int64) (flat []int64, maxLen int) {
	for _, s := range seqs {
		maxLen = max(maxLen, len(s))
	}
	flat = make([]int64, len(seqs)*maxLen)
	for i, s := range seqs {
		row := flat[i*maxLen : (i+1)*maxLen]
		n := copy(row, s)
		for j := n; j < maxLen; j++ {
			row[j] = pad
		}
	}
	return flat, maxLen
}

// paddingMask marks the first len(seqs[i]) positions of each row.
func paddingMask(seqs [][]int64, maxLen int) []bool {
	mask := make([]bool, len(seqs)*maxLen)
	for i, s := range seqs {
		for j := range s {
			mask[i*maxLen+j] = true
		}
	}
	return mask
}
