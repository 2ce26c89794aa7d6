// Package similarity scores how much a reviewer changed an agent's draft.
package similarity

import "math"

// MaxCells bounds the LCS table Ratio will fill for the part of the inputs
// that differs. Beyond it the score is an approximation; see Ratio.
const MaxCells = 4_000_000

// Ratio returns the similarity of a and b on a 0-100 scale:
// 2*LCS / (len(a)+len(b)) * 100, measured in runes and rounded to two
// decimals. Identical inputs score 100; two empty strings are identical.
//
// The common prefix and suffix are matched directly. When the remaining
// middles would need more than MaxCells comparisons, both are cut into the
// same number of proportional blocks and the block-wise LCS lengths are
// summed. That sum is a lower bound on the true LCS, so above the bound the
// score never overstates similarity, and the work stays near MaxCells.
func Ratio(a, b string) float64 {
	return ratio([]rune(a), []rune(b), MaxCells)
}

func ratio(a, b []rune, maxCells int) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	score := 200 * float64(boundedLCS(a, b, maxCells)) / float64(total)
	return math.Round(score*100) / 100
}

// boundedLCS is exact while the differing middles fit in maxCells and a
// lower bound otherwise.
func boundedLCS(a, b []rune, maxCells int) int {
	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	a, b = a[pre:], b[pre:]
	suf := 0
	for suf < len(a) && suf < len(b) && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}
	a, b = a[:len(a)-suf], b[:len(b)-suf]

	cells := len(a) * len(b)
	if cells <= maxCells {
		return pre + suf + LCSLength(a, b)
	}

	blocks := (cells + maxCells - 1) / maxCells
	blocks = min(blocks, len(a), len(b))
	n := 0
	for i := 0; i < blocks; i++ {
		n += LCSLength(
			a[i*len(a)/blocks:(i+1)*len(a)/blocks],
			b[i*len(b)/blocks:(i+1)*len(b)/blocks],
		)
	}
	return pre + suf + n
}

// LCSLength returns the length of the longest common subsequence of a and b.
// It keeps two rows of the DP table, so memory is O(min(len(a), len(b))).
func LCSLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
