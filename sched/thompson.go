package sched

import (
	"math"
	"math/rand"
)

// thompsonArm is the Beta-posterior state for one link.
type thompsonArm struct {
	alpha, beta float64
}

// thompson implements Thompson sampling over links: each link is an arm
// with a Beta(alpha, beta) posterior over send success probability,
// updated on every observed success/failure and sampled to pick among
// BLEST-approved candidates when DWRR's pick is excluded.
type thompson struct {
	arms map[uint8]*thompsonArm
	rng  *rand.Rand
}

func newThompson(rng *rand.Rand) *thompson {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &thompson{arms: make(map[uint8]*thompsonArm), rng: rng}
}

func (t *thompson) ensure(id uint8) *thompsonArm {
	a, ok := t.arms[id]
	if !ok {
		a = &thompsonArm{alpha: 1, beta: 1}
		t.arms[id] = a
	}
	return a
}

func (t *thompson) remove(id uint8) { delete(t.arms, id) }

// Success records a successful send on link id.
func (t *thompson) Success(id uint8) { t.ensure(id).alpha++ }

// Failure records a failed send on link id.
func (t *thompson) Failure(id uint8) { t.ensure(id).beta++ }

// sampleBeta draws from Beta(alpha, beta) via two Gamma draws, the
// standard construction (Beta(a,b) = X/(X+Y), X~Gamma(a,1), Y~Gamma(b,1)).
func (t *thompson) sampleBeta(alpha, beta float64) float64 {
	x := sampleGamma(t.rng, alpha)
	y := sampleGamma(t.rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) via Marsaglia-Tsang for shape>=1,
// and a boost transform for shape<1.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// Pick samples each candidate's posterior and returns the link with the
// highest draw.
func (t *thompson) Pick(candidateIDs []uint8) uint8 {
	var best uint8
	bestScore := -1.0
	for i, id := range candidateIDs {
		a := t.ensure(id)
		score := t.sampleBeta(a.alpha, a.beta)
		if i == 0 || score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best
}

// MeanProbability returns the posterior mean E[Beta] = alpha/(alpha+beta)
// for a link, used by tests asserting learning behaviour.
func (t *thompson) MeanProbability(id uint8) float64 {
	a := t.ensure(id)
	return a.alpha / (a.alpha + a.beta)
}
