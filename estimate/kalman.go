// Package estimate implements per-link RTT smoothing (a constant-velocity
// 1D Kalman filter) and delay-gradient AIMD capacity estimation.
package estimate

// KalmanRTT is a constant-velocity 1D Kalman filter over RTT samples. The
// state is [rtt, rtt_rate]; process/measurement noise default to the
// original bonding engine's for_rtt() tuning.
type KalmanRTT struct {
	processNoise     float64
	measurementNoise float64

	state [2]float64 // [rtt_ms, rate_ms_per_sample]
	p     [2][2]float64

	initialized bool
}

// DefaultProcessNoise and DefaultMeasurementNoise match the original
// bonding engine's RTT filter tuning.
const (
	DefaultProcessNoise     = 1e-5
	DefaultMeasurementNoise = 1e-2
)

// NewKalmanRTT creates a filter with the default noise parameters.
func NewKalmanRTT() *KalmanRTT {
	return NewKalmanRTTWithNoise(DefaultProcessNoise, DefaultMeasurementNoise)
}

// NewKalmanRTTWithNoise creates a filter with explicit noise parameters.
func NewKalmanRTTWithNoise(processNoise, measurementNoise float64) *KalmanRTT {
	return &KalmanRTT{processNoise: processNoise, measurementNoise: measurementNoise}
}

// Update feeds a raw RTT sample (milliseconds) and returns the smoothed
// estimate.
func (k *KalmanRTT) Update(rttMs float64) float64 {
	if !k.initialized {
		k.state = [2]float64{rttMs, 0}
		k.p = [2][2]float64{{1, 0}, {0, 1}}
		k.initialized = true
		return rttMs
	}

	// Predict: rtt += rate, rate unchanged.
	predicted := [2]float64{k.state[0] + k.state[1], k.state[1]}
	q := k.processNoise
	pp := [2][2]float64{
		{k.p[0][0] + k.p[0][1] + k.p[1][0] + k.p[1][1] + q, k.p[0][1] + k.p[1][1]},
		{k.p[1][0] + k.p[1][1], k.p[1][1] + q},
	}

	// Update: measurement is rtt only (H = [1, 0]).
	r := k.measurementNoise
	innovation := rttMs - predicted[0]
	s := pp[0][0] + r
	kGain := [2]float64{pp[0][0] / s, pp[1][0] / s}

	k.state = [2]float64{
		predicted[0] + kGain[0]*innovation,
		predicted[1] + kGain[1]*innovation,
	}
	k.p = [2][2]float64{
		{pp[0][0] * (1 - kGain[0]), pp[0][1] * (1 - kGain[0])},
		{pp[1][0] - kGain[1]*pp[0][0], pp[1][1] - kGain[1]*pp[0][1]},
	}

	return k.state[0]
}

// Value returns the last smoothed RTT without feeding a new sample.
func (k *KalmanRTT) Value() float64 {
	return k.state[0]
}
