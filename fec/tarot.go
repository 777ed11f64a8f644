package fec

import "math"

// TarotWeights are the cost-function coefficients for the rate controller:
// J(R) = alpha*p_loss(R) + beta*(R/K) + gamma*D_decode(K, RTT).
type TarotWeights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// DefaultTarotWeights matches the spec's defaults (alpha=5, beta=2, gamma=3).
var DefaultTarotWeights = TarotWeights{Alpha: 5, Beta: 2, Gamma: 3}

// RateBounds clamps the repair ratio R/K TAROT is allowed to pick.
type RateBounds struct {
	MinRatio float64
	MaxRatio float64
}

// DefaultRateBounds matches the spec's defaults ([0.02, 0.50]).
var DefaultRateBounds = RateBounds{MinRatio: 0.02, MaxRatio: 0.50}

// OptimalRepairCount is the pure TAROT cost function: it searches
// R in [1, K/2] for the value minimising J(R), subject to the ratio window,
// and returns it. loss is the observed per-packet loss rate (0-1); rttMs is
// the smoothed RTT in milliseconds.
func OptimalRepairCount(k int, loss float64, rttMs float64, w TarotWeights, bounds RateBounds) int {
	if k < 2 {
		return 1
	}
	maxR := k / 2
	if maxR < 1 {
		maxR = 1
	}
	minRFromRatio := int(math.Ceil(bounds.MinRatio * float64(k)))
	maxRFromRatio := int(math.Floor(bounds.MaxRatio * float64(k)))
	lo, hi := 1, maxR
	if minRFromRatio > lo {
		lo = minRFromRatio
	}
	if maxRFromRatio < hi {
		hi = maxRFromRatio
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}

	best := lo
	bestCost := math.Inf(1)
	for r := lo; r <= hi; r++ {
		cost := tarotCost(k, r, loss, rttMs, w)
		if cost < bestCost {
			bestCost = cost
			best = r
		}
	}
	return best
}

func tarotCost(k, r int, loss, rttMs float64, w TarotWeights) float64 {
	pLoss := math.Pow(loss, float64(r+1))
	overhead := float64(r) / float64(k)
	rtt := rttMs
	if rtt < 1 {
		rtt = 1
	}
	decodeDelay := (0.01 * float64(k)) / rtt
	return w.Alpha*pLoss + w.Beta*overhead + w.Gamma*decodeDelay
}
