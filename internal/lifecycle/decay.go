package lifecycle

// recomputeDecayScore derives decay_score from how many turns have elapsed
// since a memory's source_turn, using the same delta/1000 shape the
// retriever's decay penalty term uses so both subsystems agree on what
// "stale" means. Critical memories still decay (they are merely exempt from
// TTL and decay-driven deletion), so no importance_level special case here.
func recomputeDecayScore(currentTurn, sourceTurn int64) float64 {
	delta := currentTurn - sourceTurn
	if delta <= 0 {
		return 0
	}
	d := float64(delta) / 1000.0
	if d > 1 {
		return 1
	}
	return d
}

// changedEnough reports whether a recomputed decay score differs from the
// stored one by more than floor, the lifecycle worker's write-back
// threshold for reducing needless churn.
func changedEnough(oldScore, newScore, floor float64) bool {
	diff := newScore - oldScore
	if diff < 0 {
		diff = -diff
	}
	return diff > floor
}
