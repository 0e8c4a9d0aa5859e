package retrieve

import "math"

// weights holds the composite-score coefficients for one intent profile.
type weights struct {
	alpha, beta, gamma, delta, epsilon, zeta float64
}

var profiles = map[Intent]weights{
	IntentGeneral:  {alpha: 0.45, beta: 0.15, gamma: 0.10, delta: 0.10, epsilon: 0.15, zeta: 0.05},
	IntentSchedule: {alpha: 0.40, beta: 0.20, gamma: 0.10, delta: 0.10, epsilon: 0.10, zeta: 0.10},
	IntentPersonal: {alpha: 0.45, beta: 0.10, gamma: 0.15, delta: 0.15, epsilon: 0.10, zeta: 0.05},
}

// recency computes R = max(0.1, 0.993^delta) for delta = currentTurn - sourceTurn.
func recency(delta int64) float64 {
	r := math.Pow(0.993, float64(delta))
	if r < 0.1 {
		return 0.1
	}
	return r
}

// usage computes U = log(1 + access_count).
func usage(accessCount int) float64 {
	return math.Log(1 + float64(accessCount))
}

// decayPenalty computes D = min(1, delta/1000).
func decayPenalty(delta int64) float64 {
	d := float64(delta) / 1000.0
	if d > 1 {
		return 1
	}
	return d
}

// compositeScore applies the profile's weights and clamps to [0, 1].
// conflict is the K term: 1 if the memory's context flags a conflict.
func compositeScore(intent Intent, similarity, confidence float64, delta int64, accessCount int, conflict bool) float64 {
	w, ok := profiles[intent]
	if !ok {
		w = profiles[IntentGeneral]
	}
	k := 0.0
	if conflict {
		k = 1.0
	}
	score := w.alpha*similarity + w.beta*recency(delta) + w.gamma*usage(accessCount) + w.delta*confidence - w.epsilon*k - w.zeta*decayPenalty(delta)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
