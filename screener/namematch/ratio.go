package namematch

// Ratcliff/Obershelp similarity, computed the same way as difflib's SequenceMatcher with no junk function (including the "popular element" heuristic for long sequences), over runes.

// Sequences at least this long have their very frequent elements excluded from match seeding.
const autojunkMinLen = 200

// Pre-indexed second sequence, reusable against many first sequences.
type seqMatcher struct {
	b []rune
	// positions of each (non-popular) rune in b
	b2j map[rune][]int
}

func newSeqMatcher(b string) *seqMatcher {
	m := &seqMatcher{
		b:   []rune(b),
		b2j: make(map[rune][]int),
	}
	for j, r := range m.b {
		m.b2j[r] = append(m.b2j[r], j)
	}
	n := len(m.b)
	if n >= autojunkMinLen {
		ntest := n/100 + 1
		for r, idxs := range m.b2j {
			if len(idxs) > ntest {
				delete(m.b2j, r)
			}
		}
	}
	return m
}

// Similarity of a to b in [0, 1]: 2*M/T, with M the number of runes in matching blocks and T the total rune count.
func (m *seqMatcher) ratio(a []rune) float64 {
	total := len(a) + len(m.b)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(m.matches(a)) / float64(total)
}

// Upper bound on ratio, from lengths alone.
func realQuickRatio(la, lb int) float64 {
	total := la + lb
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(min(la, lb)) / float64(total)
}

type span struct {
	alo, ahi, blo, bhi int
}

// Total size of the matching blocks between a and m.b.
func (m *seqMatcher) matches(a []rune) int {
	total := 0
	queue := []span{{0, len(a), 0, len(m.b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := m.longestMatch(a, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}

// Longest matching block in a[alo:ahi] and b[blo:bhi], preferring the earliest start in a, then in b.
func (m *seqMatcher) longestMatch(a []rune, alo, ahi, blo, bhi int) (int, int, int) {
	b := m.b
	besti, bestj, bestsize := alo, blo, 0

	// j2len[j] is the length of the match ending at a[i-1], b[j]
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range m.b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}

	// popular elements were left out of b2j; grow the block across them
	for besti > alo && bestj > blo && a[besti-1] == b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && a[besti+bestsize] == b[bestj+bestsize] {
		bestsize++
	}
	return besti, bestj, bestsize
}

// Similarity ratio between two strings, as used by the ratio tier of matching.
func Ratio(a, b string) float64 {
	return newSeqMatcher(b).ratio([]rune(a))
}
