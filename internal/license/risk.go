package license

// Deduction per failed check
var checkWeights = map[Method]int{
	MethodConsensus:   20,
	MethodBlockchain:  15,
	MethodBehavior:    25,
	MethodGeolocation: 10,
	MethodFingerprint: 20,
	MethodAnomaly:     30,
}

const unknownCheckWeight = 10

// CheckWeight returns the score deduction for a failed check of method
func CheckWeight(method Method) int {
	if w, ok := checkWeights[method]; ok {
		return w
	}
	return unknownCheckWeight
}

// RiskLevelFor maps a failed-check count to a risk level
func RiskLevelFor(failed int) RiskLevel {
	switch {
	case failed <= 0:
		return RiskLow
	case failed <= 2:
		return RiskMedium
	case failed <= 4:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Aggregate scores a check set: 100 minus the weight of each failed check, clamped to
// [0,100], with the level taken from the number of failures.
func Aggregate(checks map[Method]CheckResult) (int, RiskLevel) {
	score := 100
	failed := 0
	for method, result := range checks {
		if result.Passed {
			continue
		}
		failed++
		score -= CheckWeight(method)
	}
	return clampScore(score), RiskLevelFor(failed)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
