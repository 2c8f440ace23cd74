package rfm

import "sort"

// quantileScores assigns 1..ScoreBins to each value by its position in the sorted
// distribution. Equal values share the score of their lowest rank, so the
// result depends only on the multiset of values, never on input order.
func quantileScores(values []float64) []int {
	n := len(values)
	scores := make([]int, n)
	if n == 0 {
		return scores
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	for i, v := range values {
		rank := sort.SearchFloat64s(sorted, v) // count of values strictly below v
		score := rank*ScoreBins/n + 1
		if score > ScoreBins {
			score = ScoreBins
		}
		scores[i] = score
	}
	return scores
}

// invertScores flips scores so that low raw values rank best (used for recency)
func invertScores(scores []int) []int {
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = ScoreBins + 1 - s
	}
	return out
}
