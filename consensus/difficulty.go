package consensus

import (
	"math/big"
	"sort"
)

// NextDifficulty implements spec section 4.E's difficulty retarget:
// given the timestamps and cumulative difficulties of the trailing
// window (oldest first, as cached by segment.Segment), trim the high
// and low outliers symmetrically from the sorted timestamp window,
// then return (sum_of_diff_window * TargetSeconds) / clamped_time_span.
// The minimum returned difficulty is p.MinimumDifficulty.
func (p *Params) NextDifficulty(timestamps []int64, cumulativeDifficulties []uint64) uint64 {
	if len(timestamps) > p.DifficultyWindow {
		timestamps = timestamps[len(timestamps)-p.DifficultyWindow:]
		cumulativeDifficulties = cumulativeDifficulties[len(cumulativeDifficulties)-p.DifficultyWindow:]
	}

	length := len(timestamps)
	if length <= 1 {
		return p.MinimumDifficulty
	}

	sorted := append([]int64(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	trimmedWindow := p.DifficultyWindow - 2*p.DifficultyCut
	cutBegin, cutEnd := 0, length
	if length > trimmedWindow {
		cutBegin = (length - trimmedWindow + 1) / 2
		cutEnd = cutBegin + trimmedWindow
	}

	timeSpan := sorted[cutEnd-1] - sorted[cutBegin]
	if timeSpan <= 0 {
		timeSpan = 1
	}

	totalWork := cumulativeDifficulties[cutEnd-1] - cumulativeDifficulties[cutBegin]

	numerator := new(big.Int).Mul(new(big.Int).SetUint64(totalWork), big.NewInt(p.TargetSeconds))
	denominator := big.NewInt(timeSpan)
	quotient := new(big.Int).Add(numerator, new(big.Int).Sub(denominator, big.NewInt(1)))
	quotient.Div(quotient, denominator)

	if !quotient.IsUint64() {
		return p.MinimumDifficulty
	}
	next := quotient.Uint64()
	if next < p.MinimumDifficulty {
		return p.MinimumDifficulty
	}
	return next
}
