package protocolstate

import (
	"github.com/shopspring/decimal"

	"talvault/numeric"
)

var (
	minRedemptionFee    = numeric.NewRatio(decimal.NewFromFloat(0.005))
	maxRedemptionFee    = numeric.NewRatio(decimal.NewFromFloat(0.05))
	redemptionDecayBase = numeric.NewRatio(decimal.NewFromFloat(0.94))
	oneHalf             = numeric.NewRatio(decimal.NewFromFloat(0.5))
)

// ComputeRedemptionFee implements the dynamic redemption fee: a base rate
// that decays 6% per elapsed hour since the last redemption, plus a term
// proportional to how much of outstanding debt this redemption converts,
// clamped to [0.5%, 5%]. Zero when nothing is borrowed.
func ComputeRedemptionFee(elapsedHours uint64, redeemedAmount, totalBorrowedTAL numeric.TAL, currentBaseRate numeric.Ratio) numeric.Ratio {
	if totalBorrowedTAL == 0 {
		return numeric.NewRatio(decimal.Zero)
	}
	decayed := currentBaseRate.Mul(redemptionDecayBase.Pow(elapsedHours))
	proportion := redeemedAmount.DivTAL(totalBorrowedTAL).Mul(oneHalf)
	total := decayed.Add(proportion)
	return numeric.ClampRatio(total, minRedemptionFee, maxRedemptionFee)
}

// nanosPerHour converts the nanosecond timestamps LastRedemptionTime is
// stored in (last_redemption_time, nanoseconds) into hours.
const nanosPerHour = uint64(3600) * 1_000_000_000

// GetRedemptionFee computes elapsed hours since LastRedemptionTime (both in
// Unix nanoseconds) and applies ComputeRedemptionFee against current state.
func (s *State) GetRedemptionFee(nowUnixNanos uint64, redeemedAmount numeric.TAL) numeric.Ratio {
	var elapsedHours uint64
	if nowUnixNanos > s.LastRedemptionTime {
		elapsedHours = (nowUnixNanos - s.LastRedemptionTime) / nanosPerHour
	}
	return ComputeRedemptionFee(elapsedHours, redeemedAmount, s.TotalBorrowedTAL(), s.CurrentBaseRate)
}
