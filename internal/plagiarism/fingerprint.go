package plagiarism

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a winnowed k-gram hash and the token offset it starts at.
type Fingerprint struct {
	Hash     uint64
	Position int
}

// kgramHashes hashes every run of k consecutive tokens. Fewer than k tokens
// yield no hashes.
func kgramHashes(tokens []string, k int) []uint64 {
	if k <= 0 || len(tokens) < k {
		return nil
	}

	tokenHashes := make([]byte, 8*len(tokens))
	for i, tok := range tokens {
		binary.LittleEndian.PutUint64(tokenHashes[8*i:], xxhash.Sum64String(tok))
	}

	hashes := make([]uint64, len(tokens)-k+1)
	for i := range hashes {
		hashes[i] = xxhash.Sum64(tokenHashes[8*i : 8*(i+k)])
	}
	return hashes
}

// winnow selects the minimum hash of every window of w consecutive hashes,
// taking the rightmost one on ties, and records each selection once.
func winnow(hashes []uint64, w int) []Fingerprint {
	if len(hashes) == 0 {
		return nil
	}
	if w <= 0 || w > len(hashes) {
		w = len(hashes)
	}

	var selected []Fingerprint
	last := -1
	for start := 0; start+w <= len(hashes); start++ {
		minPos := start
		for i := start + 1; i < start+w; i++ {
			if hashes[i] <= hashes[minPos] {
				minPos = i
			}
		}
		if minPos != last {
			selected = append(selected, Fingerprint{Hash: hashes[minPos], Position: minPos})
			last = minPos
		}
	}
	return selected
}

// Fingerprints computes the winnowed fingerprints of a token stream.
func Fingerprints(tokens []string, k, w int) []Fingerprint {
	return winnow(kgramHashes(tokens, k), w)
}

func hashSet(fps []Fingerprint) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(fps))
	for _, fp := range fps {
		set[fp.Hash] = struct{}{}
	}
	return set
}
