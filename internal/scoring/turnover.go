package scoring

// TurnoverScore grades a capability against a requirement, both in rupees.
// The band edges are fixed: existing score data depends on them.
func TurnoverScore(capability, requirement float64) (score int, met bool, reason string) {
	if requirement <= 0 {
		return 100, true, "No turnover requirement - exempted"
	}
	if capability >= requirement {
		return 100, true, "Requirement met"
	}
	if capability <= 0 {
		return 0, false, "Not eligible"
	}
	ratio := capability / requirement
	switch {
	case ratio < 0.5:
		return 30, false, "Turnover below 50% of requirement"
	case ratio < 0.8:
		return 70, false, "Turnover between 50% and 80% of requirement"
	default:
		return 90, false, "Turnover between 80% and 100% of requirement"
	}
}
