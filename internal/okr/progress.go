package okr

import "math"

// Progress returns the percentage complete of a key result:
// 0 when target <= 0, else clamp(round(current/target*100), 0, 100).
func Progress(current, target float64) int {
	if target <= 0 {
		return 0
	}
	p := math.Round(current / target * 100)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

// Progress returns the key result's percentage complete.
func (kr KeyResult) Progress() int {
	return Progress(kr.CurrentValue, kr.Target)
}

// ObjectiveProgress is the rounded, unweighted mean of the key results'
// progress, or 0 for an objective with none.
func ObjectiveProgress(o Objective) int {
	if len(o.KeyResults) == 0 {
		return 0
	}
	total := 0
	for _, kr := range o.KeyResults {
		total += kr.Progress()
	}
	return int(math.Round(float64(total) / float64(len(o.KeyResults))))
}

// Progress returns the objective's overall progress.
func (o Objective) Progress() int {
	return ObjectiveProgress(o)
}
