// Package risk maps group statistics to a bounded risk score.
package risk

import "math"

// Score bounds. Every group gets a score inside [MinScore, MaxScore].
const (
	MinScore = 1
	MaxScore = 99
)

// ExposureAnchor is the total amount that saturates the exposure band.
const ExposureAnchor = 250000.0

// Component weights of the score.
const (
	memberWeight         = 4.5
	transactionWeight    = 2.2
	counterpartyWeight   = 1.5
	exposureWeight       = 55.0
	directionalityWeight = 18.0
)

// Score blends structural complexity, logarithmic monetary exposure and
// outflow skew into an integer in [MinScore, MaxScore]. Halves round to
// even.
func Score(memberCount, transactionCount int, totalAmount float64, uniqueCounterparties int, outgoingRatio float64) int {
	exposure := 0.0
	if totalAmount > 0 {
		exposure = math.Log1p(totalAmount)
	}
	exposureScale := 0.0
	if exposure != 0 {
		exposureScale = exposure / math.Log1p(ExposureAnchor) * exposureWeight
	}
	structural := float64(memberCount)*memberWeight +
		float64(transactionCount)*transactionWeight +
		float64(uniqueCounterparties)*counterpartyWeight
	directionality := outgoingRatio * directionalityWeight

	raw := math.RoundToEven(structural + exposureScale + directionality)
	if math.IsNaN(raw) {
		return MinScore
	}
	return int(math.Max(MinScore, math.Min(MaxScore, raw)))
}
