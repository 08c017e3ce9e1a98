package plagiarism

import (
	"cmp"
	"slices"
)

// GII (Group Inverted Index) maps hash → [document indices]
type GII map[uint64][]int

// Pair is an unordered pair of document indices with A < B.
type Pair struct {
	A, B int
}

// BuildGII builds the inverted index over the hash sets of one group.
// Optimization: Skip hashes that appear in only 1 document
func BuildGII(sets []map[uint64]struct{}) GII {
	gii := make(GII)

	for doc, set := range sets {
		for hash := range set {
			gii[hash] = append(gii[hash], doc)
		}
	}

	for hash, docs := range gii {
		if len(docs) < 2 {
			delete(gii, hash)
		}
	}

	return gii
}

// SharedCounts returns |A ∩ B| for every pair of documents sharing at least
// one hash. Pairs sharing nothing are absent.
func (gii GII) SharedCounts() map[Pair]int {
	shared := make(map[Pair]int)
	for _, docs := range gii {
		for i := 0; i < len(docs); i++ {
			for j := i + 1; j < len(docs); j++ {
				shared[newPair(docs[i], docs[j])]++
			}
		}
	}
	return shared
}

// SortedPairs orders pairs by A, then B.
func SortedPairs(shared map[Pair]int) []Pair {
	pairs := make([]Pair, 0, len(shared))
	for p := range shared {
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(x, y Pair) int {
		return cmp.Or(cmp.Compare(x.A, y.A), cmp.Compare(x.B, y.B))
	})
	return pairs
}

func newPair(a, b int) Pair {
	if a < b {
		return Pair{A: a, B: b}
	}
	return Pair{A: b, B: a}
}
